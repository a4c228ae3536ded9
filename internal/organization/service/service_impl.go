package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/joblane/joblane/internal/organization/domain"
	"github.com/joblane/joblane/internal/organization/event"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	db        *gorm.DB
	repo      domain.Repository
	genID     *snowflake.Node
	publisher event.EventPublisher
}

func NewService(db *gorm.DB, repo domain.Repository, genID *snowflake.Node, publisher event.EventPublisher) domain.Service {
	return &service{
		db:        db,
		repo:      repo,
		genID:     genID,
		publisher: publisher,
	}
}

// Create registers a new organization and makes the creator its first admin.
// The creator's accepted join request, member row, admin row and cached
// affiliation are written in the same transaction as the organization.
func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.CompanyID != nil {
		return nil, domain.ErrAlreadyAffiliated
	}

	orgSlug := slug.Make(name)
	if _, err := s.repo.GetOrganizationBySlug(ctx, orgSlug); err == nil {
		return nil, domain.ErrSlugTaken
	} else if !errors.Is(err, domain.ErrOrganizationNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	orgID := s.genID.Generate()
	org := domain.Organization{
		ID:          orgID,
		Name:        name,
		Slug:        orgSlug,
		Description: strings.TrimSpace(req.Description),
		Website:     strings.TrimSpace(req.Website),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	adminRole := domain.RoleAdmin
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrganization(ctx, org); err != nil {
			return err
		}

		request := domain.JoinRequest{
			ID:          s.genID.Generate(),
			OrgID:       orgID,
			UserID:      userID,
			Role:        adminRole,
			Status:      domain.RequestAccepted,
			Origin:      domain.OriginRequested,
			RequestedAt: now,
			ResolvedAt:  &now,
			ResolvedBy:  &userID,
		}
		if err := repo.CreateJoinRequest(ctx, request); err != nil {
			return err
		}

		member := domain.OrganizationMember{
			ID:        s.genID.Generate(),
			OrgID:     orgID,
			UserID:    userID,
			Role:      adminRole,
			CreatedAt: now,
		}
		if err := repo.AddMember(ctx, member); err != nil {
			return err
		}

		admin := domain.OrganizationAdmin{
			ID:        s.genID.Generate(),
			OrgID:     orgID,
			UserID:    userID,
			CreatedAt: now,
		}
		if err := repo.AddAdmin(ctx, admin); err != nil {
			return err
		}

		return repo.SetUserAffiliation(ctx, userID, &orgID, &adminRole, domain.DeriveGlobalRole(&adminRole))
	})
	if err != nil {
		return nil, err
	}

	s.emitOrganizationCreated(ctx, org, userID)

	return &domain.OrganizationResponse{
		ID:          orgID.String(),
		Name:        name,
		Slug:        org.Slug,
		Description: org.Description,
		Website:     org.Website,
	}, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*domain.OrganizationResponse, error) {
	raw := strings.TrimSpace(id)
	if raw == "" {
		return nil, domain.ErrInvalidOrganization
	}
	orgID, err := snowflake.ParseString(raw)
	if err != nil {
		return nil, domain.ErrInvalidOrganization
	}

	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	return &domain.OrganizationResponse{
		ID:          org.ID.String(),
		Name:        org.Name,
		Slug:        org.Slug,
		Description: org.Description,
		Website:     org.Website,
	}, nil
}

func (s *service) ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListResponseItem, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	items, err := s.repo.ListOrganizationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.OrganizationListResponseItem, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.OrganizationListResponseItem{
			ID:        item.ID.String(),
			Name:      item.Name,
			Slug:      item.Slug,
			Role:      item.Role,
			CreatedAt: item.CreatedAt,
		})
	}

	return resp, nil
}

func (s *service) emitOrganizationCreated(ctx context.Context, org domain.Organization, creatorID snowflake.ID) {
	if s.publisher == nil {
		return
	}

	payload := map[string]string{
		"organization_id": org.ID.String(),
		"creator_user_id": creatorID.String(),
		"slug":            org.Slug,
		"created_at":      org.CreatedAt.Format(time.RFC3339),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		zap.L().Warn("failed to marshal organization.created payload", zap.Error(err))
		return
	}

	if err := s.publisher.Publish(ctx, event.OrganizationCreatedTopic, data); err != nil {
		zap.L().Warn("failed to publish organization.created", zap.Error(err))
	}
}
