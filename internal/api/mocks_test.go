package api

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MorseWayne/storefront/internal/domain"
	"github.com/MorseWayne/storefront/internal/service"
)

// stubSource 实现 listing.ProductSource
type stubSource struct {
	mu            sync.Mutex
	products      []domain.Product
	fail          bool
	categoryCalls int
}

func (s *stubSource) all() ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("store unavailable")
	}
	return append([]domain.Product(nil), s.products...), nil
}

func (s *stubSource) where(keep func(*domain.Product) bool) ([]domain.Product, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}
	out := []domain.Product{}
	for i := range all {
		if keep(&all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (s *stubSource) List(ctx context.Context) ([]domain.Product, error) { return s.all() }

func (s *stubSource) ListByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	s.mu.Lock()
	s.categoryCalls++
	s.mu.Unlock()
	return s.where(func(p *domain.Product) bool { return p.Category == category })
}

func (s *stubSource) ListFeatured(ctx context.Context) ([]domain.Product, error) {
	return s.where(func(p *domain.Product) bool { return p.IsFeatured })
}

func (s *stubSource) ListDiscounted(ctx context.Context) ([]domain.Product, error) {
	return s.where(func(p *domain.Product) bool { return p.HasDiscount() })
}

func (s *stubSource) DistinctCategories(ctx context.Context) ([]string, error) {
	all, err := s.all()
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, p := range all {
		if !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	return out, nil
}

// mockProductService 内存实现的 service.ProductService
type mockProductService struct {
	products map[string]domain.Product
	created  int
	statsErr error
}

func newMockProductService(products ...domain.Product) *mockProductService {
	m := &mockProductService{products: make(map[string]domain.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockProductService) CreateProduct(ctx context.Context, req *domain.CreateProductRequest) (*domain.Product, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: Name failed on 'required'", domain.ErrValidation)
	}
	m.created++
	p := domain.Product{
		ID: fmt.Sprintf("new-%d", m.created), Name: req.Name, Category: req.Category,
		Price: domain.Float64(req.Price), Discount: domain.Float64(req.Discount), Stock: domain.Int(req.Stock),
	}
	m.products[p.ID] = p
	return &p, nil
}

func (m *mockProductService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (m *mockProductService) UpdateProduct(ctx context.Context, id string, req *domain.UpdateProductRequest) (*domain.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	if req.Discount != nil {
		p.Discount = domain.Float64(*req.Discount)
	}
	m.products[id] = p
	return &p, nil
}

func (m *mockProductService) DeleteProduct(ctx context.Context, id string) error {
	if _, ok := m.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *mockProductService) GetProductStats(ctx context.Context) (*domain.ProductStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return &domain.ProductStats{TotalProducts: len(m.products)}, nil
}

// mockAuthService 固定账号的认证服务
type mockAuthService struct{}

func (mockAuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	if req.Username != "admin" || req.Password != "s3cret" {
		return nil, service.ErrInvalidCredentials
	}
	return &domain.LoginResponse{
		User:         &domain.User{ID: "admin", Username: "admin", Role: domain.UserRoleAdmin},
		AccessToken:  "access",
		RefreshToken: "refresh",
	}, nil
}

func (mockAuthService) Refresh(ctx context.Context, refreshToken string) (*service.TokenPair, error) {
	if refreshToken != "refresh" {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	return &service.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}
