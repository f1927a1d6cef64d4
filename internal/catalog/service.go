// Package catalog covers product and category reads and the admin
// mutations, including the cached hierarchical category tree.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"shopcore/internal/model"
	"shopcore/pkg/cache"
)

var (
	ErrNotFound       = errors.New("catalog: not found")
	ErrParentNotFound = errors.New("catalog: parent category not found")
)

// TreeCache is the read-cache port for the category tree. A nil cache
// disables caching; cache errors degrade to a database read.
type TreeCache interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, keys ...string) error
}

// TreeNode is one category with its children, as served to clients.
type TreeNode struct {
	ID          uint        `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Children    []*TreeNode `json:"children"`
}

type Service struct {
	db    *gorm.DB
	cache TreeCache
	log   *zap.Logger
}

func NewService(db *gorm.DB, treeCache TreeCache, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, cache: treeCache, log: log.With(zap.String("component", "catalog_service"))}
}

// ProductInput is the admin product-creation payload.
type ProductInput struct {
	Name        string `json:"name" binding:"required"`
	SKU         string `json:"sku" binding:"required"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents" binding:"required,min=1"`
	Stock       int    `json:"stock" binding:"min=0"`
	CategoryID  *uint  `json:"category_id"`
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	if in.CategoryID != nil {
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.Category{}).Where("id = ?", *in.CategoryID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, fmt.Errorf("%w: id=%d", ErrParentNotFound, *in.CategoryID)
		}
	}
	p := &model.Product{
		Name:        in.Name,
		SKU:         in.SKU,
		Description: in.Description,
		PriceCents:  in.PriceCents,
		Stock:       in.Stock,
		Status:      model.ProductActive,
		CategoryID:  in.CategoryID,
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	s.log.Info("product_created", zap.Uint("product_id", p.ID), zap.String("sku", p.SKU))
	return p, nil
}

func (s *Service) GetProduct(ctx context.Context, productID uint) (*model.Product, error) {
	var p model.Product
	if err := s.db.WithContext(ctx).First(&p, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListProducts returns catalog items, optionally only orderable ones.
func (s *Service) ListProducts(ctx context.Context, activeOnly bool) ([]model.Product, error) {
	q := s.db.WithContext(ctx).Order("id")
	if activeOnly {
		q = q.Where("status = ?", model.ProductActive)
	}
	var list []model.Product
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// CategoryInput is the admin category-creation payload.
type CategoryInput struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	ParentID    *uint  `json:"parent_id"`
}

// CreateCategory adds a tree node and invalidates the cached tree.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*model.Category, error) {
	if in.ParentID != nil {
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.Category{}).Where("id = ?", *in.ParentID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, fmt.Errorf("%w: id=%d", ErrParentNotFound, *in.ParentID)
		}
	}
	c := &model.Category{Name: in.Name, Description: in.Description, ParentID: in.ParentID}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, cache.CategoryTreeKey()); err != nil {
			s.log.Warn("category_tree_invalidate_failed", zap.Error(err))
		}
	}
	s.log.Info("category_created", zap.Uint("category_id", c.ID), zap.String("name", c.Name))
	return c, nil
}

// CategoryTree returns the full category hierarchy, served from the
// cache when possible and rebuilt from the database otherwise.
func (s *Service) CategoryTree(ctx context.Context) ([]*TreeNode, error) {
	if s.cache != nil {
		var cached []*TreeNode
		hit, err := s.cache.Get(ctx, cache.CategoryTreeKey(), &cached)
		if err != nil {
			s.log.Warn("category_tree_cache_read_failed", zap.Error(err))
		} else if hit {
			return cached, nil
		}
	}

	var categories []model.Category
	if err := s.db.WithContext(ctx).Order("id").Find(&categories).Error; err != nil {
		return nil, err
	}
	tree := buildTree(categories)

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.CategoryTreeKey(), tree); err != nil {
			s.log.Warn("category_tree_cache_write_failed", zap.Error(err))
		}
	}
	return tree, nil
}

// buildTree links categories into a forest by parent id, depth-first
// from the roots. Nodes with a dangling parent reference are dropped.
func buildTree(categories []model.Category) []*TreeNode {
	nodes := make(map[uint]*TreeNode, len(categories))
	children := make(map[uint][]uint)
	var roots []uint

	for _, c := range categories {
		nodes[c.ID] = &TreeNode{ID: c.ID, Name: c.Name, Description: c.Description, Children: []*TreeNode{}}
		if c.ParentID == nil {
			roots = append(roots, c.ID)
		} else {
			children[*c.ParentID] = append(children[*c.ParentID], c.ID)
		}
	}

	var attach func(id uint) *TreeNode
	attach = func(id uint) *TreeNode {
		node := nodes[id]
		for _, childID := range children[id] {
			node.Children = append(node.Children, attach(childID))
		}
		return node
	}

	tree := make([]*TreeNode, 0, len(roots))
	for _, id := range roots {
		tree = append(tree, attach(id))
	}
	return tree
}
