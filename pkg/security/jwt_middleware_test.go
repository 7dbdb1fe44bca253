package security

import (
	"net/http"
	"net/http/httptest"
	"substock/pkg/roles"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signedToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func setupRouter(required roles.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", JWTMiddleware(testSecret), Authorize(required), func(c *gin.Context) {
		actorID, err := ActorID(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"actor_id": actorID})
	})
	return router
}

func TestJWTMiddleware(t *testing.T) {
	valid := jwt.MapClaims{"userID": "12", "role": "pharmacist", "exp": time.Now().Add(time.Hour).Unix()}

	tests := []struct {
		name           string
		header         string
		required       roles.Role
		expectedStatus int
	}{
		{"missing header", "", roles.Staff, http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-token", roles.Staff, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signedToken(t, jwt.SigningMethodHS256, []byte("other"), valid), roles.Staff, http.StatusUnauthorized},
		{"expired", "Bearer " + signedToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"userID": "12", "role": "admin", "exp": time.Now().Add(-time.Hour).Unix()}), roles.Staff, http.StatusUnauthorized},
		{"role too low", "Bearer " + signedToken(t, jwt.SigningMethodHS256, testSecret, valid), roles.Admin, http.StatusForbidden},
		{"allowed", "Bearer " + signedToken(t, jwt.SigningMethodHS256, testSecret, valid), roles.Pharmacist, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			setupRouter(tt.required).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestActorID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		value     interface{}
		expected  int
		expectErr bool
	}{
		{"int", 7, 7, false},
		{"json number", float64(8), 8, false},
		{"string", "9", 9, false},
		{"bad string", "nine", 0, true},
		{"missing", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			if tt.value != nil {
				c.Set("userID", tt.value)
			}

			id, err := ActorID(c)

			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, id)
		})
	}
}
