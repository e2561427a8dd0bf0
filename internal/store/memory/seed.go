package memory

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"possync/backend/internal/domain"
)

//go:embed seed.yaml
var defaultSeed []byte

// Seed is the fixture an in-memory store starts from. Money is kept as text so YAML
// authors write "12500.00" rather than floats.
type Seed struct {
	Stores   []SeedStore   `yaml:"stores"`
	Products []SeedProduct `yaml:"products"`
	Users    []SeedUser    `yaml:"users"`
}

type SeedStore struct {
	ID        string    `yaml:"id"`
	TenantID  string    `yaml:"tenant_id"`
	Name      string    `yaml:"name"`
	CreatedAt time.Time `yaml:"created_at"`
}

type SeedProduct struct {
	ID        string `yaml:"id"`
	TenantID  string `yaml:"tenant_id"`
	SKU       string `yaml:"sku"`
	Name      string `yaml:"name"`
	Price     string `yaml:"price"`
	CostPrice string `yaml:"cost_price"`
	Stock     int    `yaml:"stock"`
	MinStock  int    `yaml:"min_stock"`
	Inactive  bool   `yaml:"inactive"`
}

// SeedUser passwords are plain text; PasswordEnv, when set and present in the
// environment, overrides Password.
type SeedUser struct {
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	PasswordEnv string `yaml:"password_env"`
	Role        string `yaml:"role"`
	TenantID    string `yaml:"tenant_id"`
	StoreID     string `yaml:"store_id"`
}

// NewSeeded builds a store from the embedded demo fixture.
func NewSeeded() *Store {
	seed, err := ParseSeed(defaultSeed)
	if err != nil {
		logrus.WithError(err).Fatal("memory-store: embedded seed is invalid")
	}
	s, err := New(seed)
	if err != nil {
		logrus.WithError(err).Fatal("memory-store: failed to load embedded seed")
	}
	return s
}

// LoadSeedFile builds a store from a YAML fixture on disk.
func LoadSeedFile(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	seed, err := ParseSeed(raw)
	if err != nil {
		return nil, err
	}
	return New(seed)
}

func ParseSeed(raw []byte) (Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	return seed, nil
}

func New(seed Seed) (*Store, error) {
	s := newEmpty()

	for _, st := range seed.Stores {
		if st.ID == "" || st.TenantID == "" {
			return nil, fmt.Errorf("seed store %q: id and tenant_id are required", st.ID)
		}
		if st.CreatedAt.IsZero() {
			st.CreatedAt = time.Now().UTC()
		}
		s.stores[st.ID] = domain.Store{
			ID:        st.ID,
			TenantID:  st.TenantID,
			Name:      st.Name,
			CreatedAt: st.CreatedAt.UTC(),
		}
	}

	for _, p := range seed.Products {
		if p.ID == "" || p.TenantID == "" {
			return nil, fmt.Errorf("seed product %q: id and tenant_id are required", p.ID)
		}
		price, err := parseMoney(p.Price)
		if err != nil {
			return nil, fmt.Errorf("seed product %s price: %w", p.ID, err)
		}
		cost, err := parseMoney(p.CostPrice)
		if err != nil {
			return nil, fmt.Errorf("seed product %s cost_price: %w", p.ID, err)
		}
		if p.Stock < 0 {
			return nil, fmt.Errorf("seed product %s: negative stock", p.ID)
		}
		s.products[p.ID] = domain.Product{
			ID:        p.ID,
			TenantID:  p.TenantID,
			SKU:       p.SKU,
			Name:      p.Name,
			Price:     price,
			CostPrice: cost,
			Stock:     p.Stock,
			MinStock:  p.MinStock,
			Active:    !p.Inactive,
		}
	}

	now := time.Now().UTC()
	for _, u := range seed.Users {
		password := u.Password
		if u.PasswordEnv != "" {
			if v := os.Getenv(u.PasswordEnv); v != "" {
				password = v
			} else {
				logrus.WithField("username", u.Username).Warnf("memory-store: %s not set, using dev default password", u.PasswordEnv)
			}
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.Username, err)
		}
		role := u.Role
		if role == "" {
			role = domain.RoleCashier
		}
		s.usersByUsername[u.Username] = domain.UserAccount{
			Username:  u.Username,
			Password:  string(hash),
			Role:      role,
			TenantID:  u.TenantID,
			StoreID:   u.StoreID,
			Active:    true,
			CreatedAt: now,
		}
	}

	return s, nil
}

func parseMoney(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %s", raw)
	}
	return value, nil
}
