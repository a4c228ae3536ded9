package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/joblane/joblane/internal/auth/domain"
	"github.com/joblane/joblane/internal/organization/domain"
	"github.com/joblane/joblane/pkg/db/pagination"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Create(&org).Error
}

func (r *repository) GetOrganization(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).First(&org, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrganizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) GetOrganizationBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).First(&org, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrganizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListItem, error) {
	var items []domain.OrganizationListItem
	err := r.db.WithContext(ctx).Raw(
		`SELECT o.id, o.name, o.slug, m.role, o.created_at
		 FROM organizations o
		 JOIN organization_members m ON m.org_id = o.id
		 WHERE m.user_id = ?
		 ORDER BY o.created_at ASC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) AddMember(ctx context.Context, member domain.OrganizationMember) error {
	return r.db.WithContext(ctx).Create(&member).Error
}

func (r *repository) GetMember(ctx context.Context, orgID, userID snowflake.ID) (*domain.OrganizationMember, error) {
	var member domain.OrganizationMember
	err := r.db.WithContext(ctx).First(&member, "org_id = ? AND user_id = ?", orgID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) UpdateMemberRole(ctx context.Context, orgID, userID snowflake.ID, role string) error {
	tx := r.db.WithContext(ctx).
		Model(&domain.OrganizationMember{}).
		Where("org_id = ? AND user_id = ?", orgID, userID).
		Update("role", role)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (r *repository) RemoveMember(ctx context.Context, orgID, userID snowflake.ID) error {
	tx := r.db.WithContext(ctx).
		Where("org_id = ? AND user_id = ?", orgID, userID).
		Delete(&domain.OrganizationMember{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (r *repository) ListMembers(ctx context.Context, orgID snowflake.ID, page pagination.Pagination) ([]domain.MemberListItem, *pagination.PageInfo, error) {
	size := page.Limit()

	query := r.db.WithContext(ctx).
		Table("organization_members m").
		Select("m.user_id, u.display_name, u.email, m.role, m.created_at").
		Joins("JOIN users u ON u.id = m.user_id").
		Where("m.org_id = ?", orgID).
		Order("m.created_at ASC, m.user_id ASC").
		Limit(size + 1)

	if cursor, err := pagination.DecodeCursor(page.PageToken); err != nil {
		return nil, nil, err
	} else if cursor != nil {
		query = query.Where(
			"m.created_at > ? OR (m.created_at = ? AND m.user_id > ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var items []domain.MemberListItem
	if err := query.Scan(&items).Error; err != nil {
		return nil, nil, err
	}

	info := &pagination.PageInfo{}
	if len(items) > size {
		items = items[:size]
		last := items[len(items)-1]
		info.HasMore = true
		info.NextPageToken = pagination.EncodeCursor(pagination.Cursor{
			ID:        last.UserID.Int64(),
			CreatedAt: last.CreatedAt,
		})
	}
	return items, info, nil
}

func (r *repository) AddAdmin(ctx context.Context, admin domain.OrganizationAdmin) error {
	return r.db.WithContext(ctx).Create(&admin).Error
}

func (r *repository) IsAdmin(ctx context.Context, orgID, userID snowflake.ID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.OrganizationAdmin{}).
		Where("org_id = ? AND user_id = ?", orgID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) RemoveAdmin(ctx context.Context, orgID, userID snowflake.ID) error {
	return r.db.WithContext(ctx).
		Where("org_id = ? AND user_id = ?", orgID, userID).
		Delete(&domain.OrganizationAdmin{}).Error
}

func (r *repository) CreateJoinRequest(ctx context.Context, req domain.JoinRequest) error {
	return r.db.WithContext(ctx).Create(&req).Error
}

func (r *repository) GetJoinRequest(ctx context.Context, orgID, requestID snowflake.ID) (*domain.JoinRequest, error) {
	var req domain.JoinRequest
	err := r.db.WithContext(ctx).First(&req, "id = ? AND org_id = ?", requestID, orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) FindJoinRequest(ctx context.Context, orgID, userID snowflake.ID, statuses ...string) (*domain.JoinRequest, error) {
	query := r.db.WithContext(ctx).Where("org_id = ? AND user_id = ?", orgID, userID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var req domain.JoinRequest
	err := query.Order("requested_at DESC, id DESC").First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) UpdateJoinRequest(ctx context.Context, req domain.JoinRequest) error {
	tx := r.db.WithContext(ctx).
		Model(&domain.JoinRequest{}).
		Where("id = ?", req.ID).
		Select("role", "status", "resolved_at", "resolved_by").
		Updates(&req)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

// ResolvePendingJoinRequest transitions a request out of pending. The status
// guard on the WHERE clause makes concurrent resolvers lose cleanly: the
// second writer matches zero rows instead of overwriting a terminal state.
func (r *repository) ResolvePendingJoinRequest(ctx context.Context, req domain.JoinRequest) error {
	tx := r.db.WithContext(ctx).
		Model(&domain.JoinRequest{}).
		Where("id = ? AND status = ?", req.ID, domain.RequestPending).
		Select("role", "status", "resolved_at", "resolved_by").
		Updates(&req)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

func (r *repository) DeleteJoinRequest(ctx context.Context, requestID snowflake.ID) error {
	tx := r.db.WithContext(ctx).
		Where("id = ?", requestID).
		Delete(&domain.JoinRequest{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

func (r *repository) DeletePendingJoinRequest(ctx context.Context, requestID snowflake.ID) error {
	tx := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", requestID, domain.RequestPending).
		Delete(&domain.JoinRequest{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

func (r *repository) ListJoinRequests(ctx context.Context, orgID snowflake.ID, status string, page pagination.Pagination) ([]domain.JoinRequest, *pagination.PageInfo, error) {
	size := page.Limit()

	query := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("requested_at ASC, id ASC").
		Limit(size + 1)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if cursor, err := pagination.DecodeCursor(page.PageToken); err != nil {
		return nil, nil, err
	} else if cursor != nil {
		query = query.Where(
			"requested_at > ? OR (requested_at = ? AND id > ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var items []domain.JoinRequest
	if err := query.Find(&items).Error; err != nil {
		return nil, nil, err
	}

	info := &pagination.PageInfo{}
	if len(items) > size {
		items = items[:size]
		last := items[len(items)-1]
		info.HasMore = true
		info.NextPageToken = pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.Int64(),
			CreatedAt: last.RequestedAt,
		})
	}
	return items, info, nil
}

func (r *repository) ListJoinRequestsByUser(ctx context.Context, userID snowflake.ID) ([]domain.UserJoinRequestItem, error) {
	var items []domain.UserJoinRequestItem
	err := r.db.WithContext(ctx).Raw(
		`SELECT jr.id, jr.org_id, o.name AS org_name, jr.role, jr.status, jr.origin, jr.requested_at, jr.resolved_at
		 FROM organization_join_requests jr
		 JOIN organizations o ON o.id = jr.org_id
		 WHERE jr.user_id = ?
		 ORDER BY jr.requested_at DESC, jr.id DESC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) GetUser(ctx context.Context, userID snowflake.ID) (*authdomain.User, error) {
	var user authdomain.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, authdomain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) SetUserAffiliation(ctx context.Context, userID snowflake.ID, companyID *snowflake.ID, companyRole *string, globalRole string) error {
	tx := r.db.WithContext(ctx).
		Model(&authdomain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"company_id":   companyID,
			"company_role": companyRole,
			"role":         globalRole,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return authdomain.ErrUserNotFound
	}
	return nil
}
