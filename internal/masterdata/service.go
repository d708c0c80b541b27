package masterdata

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tutti-stock/tutti-stock/internal/shared"
)

// Repository abstracts catalog persistence.
type Repository interface {
	ListLocations(ctx context.Context, filter LocationFilter) ([]Location, error)
	GetLocation(ctx context.Context, id uuid.UUID) (Location, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]Item, error)
	GetItem(ctx context.Context, id uuid.UUID) (Item, error)
	CreateItem(ctx context.Context, item Item) (Item, error)
	UpdateItem(ctx context.Context, item Item) (Item, error)
	SetItemActive(ctx context.Context, id uuid.UUID, active bool) error
	SetItemFavorite(ctx context.Context, id uuid.UUID, favorite bool) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes the item and location catalog.
type Service struct {
	repo      Repository
	audit     AuditPort
	logger    *slog.Logger
	listeners []ChangeListener
}

// NewService creates a new master data service. Listeners run after every
// successful item edit.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger, listeners ...ChangeListener) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, listeners: listeners}
}

// Warehouse resolves the single warehouse location.
func (s *Service) Warehouse(ctx context.Context) (Location, error) {
	locs, err := s.repo.ListLocations(ctx, LocationFilter{Type: LocationWarehouse})
	if err != nil {
		return Location{}, shared.Dependency(err)
	}
	switch len(locs) {
	case 0:
		return Location{}, ErrWarehouseMissing
	case 1:
		return locs[0], nil
	default:
		return Location{}, ErrWarehouseAmbiguous.Withf("Expected one warehouse location, found %d", len(locs))
	}
}

// CheckWarehouse verifies the warehouse configuration at startup.
func (s *Service) CheckWarehouse(ctx context.Context) error {
	wh, err := s.Warehouse(ctx)
	if err != nil {
		s.logger.Error("warehouse configuration invalid", slog.Any("error", err))
		return err
	}
	s.logger.Info("warehouse resolved", slog.String("location_id", wh.ID.String()), slog.String("name", wh.Name))
	return nil
}

// Location fetches a location by id.
func (s *Service) Location(ctx context.Context, id uuid.UUID) (Location, error) {
	loc, err := s.repo.GetLocation(ctx, id)
	if err != nil {
		return Location{}, wrapLookup(err, "location")
	}
	return loc, nil
}

// Branch fetches an active branch by id.
func (s *Service) Branch(ctx context.Context, id uuid.UUID) (Location, error) {
	loc, err := s.Location(ctx, id)
	if err != nil {
		return Location{}, err
	}
	if !loc.IsBranch() {
		return Location{}, ErrNotBranch.Withf("%s is not a branch", loc.Name)
	}
	if !loc.IsActive {
		return Location{}, ErrInactiveLocation.Withf("%s is not active", loc.Name)
	}
	return loc, nil
}

// ListBranches lists branch locations.
func (s *Service) ListBranches(ctx context.Context, activeOnly bool) ([]Location, error) {
	locs, err := s.repo.ListLocations(ctx, LocationFilter{Type: LocationBranch, ActiveOnly: activeOnly})
	if err != nil {
		return nil, shared.Dependency(err)
	}
	return locs, nil
}

// ListLocations lists locations matching filter.
func (s *Service) ListLocations(ctx context.Context, filter LocationFilter) ([]Location, error) {
	locs, err := s.repo.ListLocations(ctx, filter)
	if err != nil {
		return nil, shared.Dependency(err)
	}
	return locs, nil
}

// Item fetches an item by id.
func (s *Service) Item(ctx context.Context, id uuid.UUID) (Item, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return Item{}, wrapLookup(err, "item")
	}
	return item, nil
}

// Items lists items matching filter.
func (s *Service) Items(ctx context.Context, filter ItemFilter) ([]Item, error) {
	items, err := s.repo.ListItems(ctx, filter)
	if err != nil {
		return nil, shared.Dependency(err)
	}
	return items, nil
}

// ItemIndex lists items keyed by id.
func (s *Service) ItemIndex(ctx context.Context, filter ItemFilter) (map[uuid.UUID]Item, error) {
	items, err := s.Items(ctx, filter)
	if err != nil {
		return nil, err
	}
	index := make(map[uuid.UUID]Item, len(items))
	for _, it := range items {
		index[it.ID] = it
	}
	return index, nil
}

// CreateItem adds an item to the catalog.
func (s *Service) CreateItem(ctx context.Context, actor shared.Actor, input ItemInput) (Item, error) {
	if err := actor.Require(shared.RoleOwner, shared.RoleManager); err != nil {
		return Item{}, err
	}
	item, err := input.normalize()
	if err != nil {
		return Item{}, err
	}
	item.IsActive = true
	created, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return Item{}, shared.Dependency(err)
	}
	s.record(ctx, actor, "item:create", created.ID, map[string]any{"sku": created.SKU})
	s.notify(ctx, CatalogChange{ItemID: created.ID, Action: "item:create"})
	return created, nil
}

// UpdateItem replaces the editable fields of an item.
func (s *Service) UpdateItem(ctx context.Context, actor shared.Actor, id uuid.UUID, input ItemInput) (Item, error) {
	if err := actor.Require(shared.RoleOwner, shared.RoleManager); err != nil {
		return Item{}, err
	}
	current, err := s.Item(ctx, id)
	if err != nil {
		return Item{}, err
	}
	item, err := input.normalize()
	if err != nil {
		return Item{}, err
	}
	item.ID = current.ID
	item.IsActive = current.IsActive
	item.IsFavorite = current.IsFavorite
	updated, err := s.repo.UpdateItem(ctx, item)
	if err != nil {
		return Item{}, wrapLookup(err, "item")
	}
	s.record(ctx, actor, "item:update", id, map[string]any{"sku": updated.SKU, "pieces_per_box": updated.PiecesPerBox})
	s.notify(ctx, CatalogChange{ItemID: id, Action: "item:update"})
	return updated, nil
}

// SetItemActive activates or retires an item.
func (s *Service) SetItemActive(ctx context.Context, actor shared.Actor, id uuid.UUID, active bool) error {
	if err := actor.Require(shared.RoleOwner, shared.RoleManager); err != nil {
		return err
	}
	if err := s.repo.SetItemActive(ctx, id, active); err != nil {
		return wrapLookup(err, "item")
	}
	s.record(ctx, actor, "item:active", id, map[string]any{"active": active})
	s.notify(ctx, CatalogChange{ItemID: id, Action: "item:active"})
	return nil
}

// SetItemFavorite pins or unpins an item.
func (s *Service) SetItemFavorite(ctx context.Context, actor shared.Actor, id uuid.UUID, favorite bool) error {
	if err := actor.Require(); err != nil {
		return err
	}
	if err := s.repo.SetItemFavorite(ctx, id, favorite); err != nil {
		return wrapLookup(err, "item")
	}
	s.notify(ctx, CatalogChange{ItemID: id, Action: "item:favorite"})
	return nil
}

func (s *Service) notify(ctx context.Context, change CatalogChange) {
	for _, l := range s.listeners {
		if err := l.HandleCatalogChanged(ctx, change); err != nil {
			s.logger.Warn("catalog listener failed",
				slog.String("action", change.Action),
				slog.String("item_id", change.ItemID.String()),
				slog.Any("error", err))
		}
	}
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor.ID, Action: action, Entity: "item", EntityID: id.String(), Meta: meta}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func wrapLookup(err error, entity string) error {
	if errors.Is(err, ErrRecordNotFound) {
		return shared.NotFound(entity)
	}
	return shared.Dependency(err)
}
