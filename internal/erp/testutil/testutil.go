package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/bitfantasy/backoffice/internal/config"
	"github.com/bitfantasy/backoffice/internal/erp/entity"
	"github.com/bitfantasy/backoffice/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	TestSchema = "test_backoffice"
	JWTSecret  = "backoffice-test-jwt-secret"
	CSRFToken  = "test-csrf-token"
)

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func loadEnv() {
	if root := projectRoot(); root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB opens an isolated schema per test and migrates it. Tests are
// skipped when no database is reachable.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	dbCfg := config.DatabaseConfig{
		Host:     config.GetEnvOrDefault("DB_HOST", "127.0.0.1"),
		User:     config.GetEnvOrDefault("DB_USER", "backoffice"),
		Password: config.GetEnvOrDefault("DB_PASSWORD", "backoffice"),
		DBName:   config.GetEnvOrDefault("DB_NAME", "backoffice"),
		SSLMode:  config.GetEnvOrDefault("DB_SSLMODE", "disable"),
		Port:     5432,
	}
	if p := os.Getenv("DB_PORT"); p != "" {
		fmt.Sscanf(p, "%d", &dbCfg.Port)
	}
	baseDSN := dbCfg.DSN()

	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000000)

	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("database unavailable: %v", err)
	}
	if err := setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName)).Error; err != nil {
		t.Skipf("cannot create test schema: %v", err)
	}
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	// search_path in the DSN so every pooled connection uses the test schema
	testDSN := fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)
	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	warnings, err := entity.Migrate(db)
	if err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}
	for _, w := range warnings {
		t.Logf("migration warning: %v", w)
	}

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		cleanDB, cleanErr := gorm.Open(postgres.Open(baseDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if cleanErr == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			if sqlClean, _ := cleanDB.DB(); sqlClean != nil {
				sqlClean.Close()
			}
		}
	})

	return db
}

// SetupRouter gin test engine
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// TokenUser identity baked into a test token
type TokenUser struct {
	ID       int64
	Name     string
	Email    string
	BranchID int64
	RoleID   int64
	Roles    []string
}

// GenerateTestToken signs a session token with JWTSecret
func GenerateTestToken(u TokenUser) string {
	if u.Roles == nil {
		u.Roles = []string{}
	}
	now := time.Now()
	claims := middleware.JWTClaims{
		UserID:   u.ID,
		Name:     u.Name,
		Email:    u.Email,
		BranchID: u.BranchID,
		RoleID:   u.RoleID,
		Roles:    u.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", u.ID),
			Issuer:    "backoffice",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			ID:        fmt.Sprintf("test-jti-%d", now.UnixNano()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// AdminToken token of an administrator
func AdminToken() string {
	return GenerateTestToken(TokenUser{ID: 1, Name: "Test Admin", Email: "admin@test.com", BranchID: 1, RoleID: 1, Roles: []string{"admin"}})
}

// DoRequest JSON request with a bearer token
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// DoForm URL-encoded screen post carrying a matching CSRF cookie and field
func DoForm(r *gin.Engine, path string, form url.Values, token string) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	form.Set(middleware.CSRFField, CSRFToken)

	req, _ := http.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookie, Value: CSRFToken})
	if token != "" {
		req.AddCookie(&http.Cookie{Name: middleware.TokenCookie, Value: token})
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse decodes the response envelope
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedMaster inserts one attribute master row and returns its id
func SeedMaster(t *testing.T, db *gorm.DB, table, code, name string) int64 {
	t.Helper()
	now := time.Now()
	var id int64
	err := db.Raw(fmt.Sprintf(`INSERT INTO %s (code, name, name_ur, is_active, created_at, updated_at)
		VALUES (?, ?, ?, true, ?, ?) RETURNING id`, table), code, name, name, now, now).Scan(&id).Error
	if err != nil {
		t.Fatalf("Failed to seed %s: %v", table, err)
	}
	return id
}

// SeedItem inserts an item
func SeedItem(t *testing.T, db *gorm.DB, code, name, itemType string, baseUOMID *int64) *entity.Item {
	t.Helper()
	item := &entity.Item{
		Code:      code,
		Name:      name,
		NameUr:    name,
		ItemType:  itemType,
		BaseUOMID: baseUOMID,
		IsActive:  true,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("Failed to seed item: %v", err)
	}
	return item
}

// SeedUser inserts a role (by name, reused when present) and a user holding it
func SeedUser(t *testing.T, db *gorm.DB, name, email, status, roleName string) *entity.User {
	t.Helper()
	var role entity.Role
	if err := db.Where("name = ?", roleName).FirstOrCreate(&role, entity.Role{Name: roleName}).Error; err != nil {
		t.Fatalf("Failed to seed role: %v", err)
	}
	user := &entity.User{
		Name:          name,
		Email:         email,
		Status:        status,
		PrimaryRoleID: &role.ID,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	return user
}

// SeedPolicy requires approval for (role, scope, action)
func SeedPolicy(t *testing.T, db *gorm.DB, roleID int64, scopeKey, action string) {
	t.Helper()
	policy := &entity.ApprovalPolicy{RoleID: roleID, ScopeKey: scopeKey, Action: action, RequiresApproval: true}
	if err := db.Create(policy).Error; err != nil {
		t.Fatalf("Failed to seed approval policy: %v", err)
	}
}
