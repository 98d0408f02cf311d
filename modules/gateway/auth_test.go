package gateway

import (
	"testing"
	"time"
)

func testJWTConfig() JWTConfig {
	return JWTConfig{
		SecretKey:     "test-secret-key",
		TokenDuration: time.Hour,
		Issuer:        "test-issuer",
	}
}

func TestJWTManager_GenerateAndValidateToken(t *testing.T) {
	manager := NewJWTManager(testJWTConfig())

	token, err := manager.GenerateToken("user-123", "alice")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if token == "" {
		t.Error("GenerateToken() returned empty token")
	}

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}

	if claims.UserID != "user-123" {
		t.Errorf("claims.UserID = %v, want %v", claims.UserID, "user-123")
	}
	if claims.Username != "alice" {
		t.Errorf("claims.Username = %v, want %v", claims.Username, "alice")
	}
	if claims.Issuer != "test-issuer" {
		t.Errorf("claims.Issuer = %v, want %v", claims.Issuer, "test-issuer")
	}
}

func TestJWTManager_InvalidToken(t *testing.T) {
	manager := NewJWTManager(testJWTConfig())

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "empty token",
			token: "",
		},
		{
			name:  "random string",
			token: "not.a.valid.token",
		},
		{
			name:  "malformed jwt",
			token: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.ValidateToken(tt.token)
			if err == nil {
				t.Error("ValidateToken() should return error for invalid token")
			}
		})
	}
}

func TestJWTManager_WrongSecretKey(t *testing.T) {
	manager1 := NewJWTManager(testJWTConfig())

	config2 := testJWTConfig()
	config2.SecretKey = "another-secret-key"
	manager2 := NewJWTManager(config2)

	token, err := manager1.GenerateToken("user-123", "alice")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if _, err := manager2.ValidateToken(token); err == nil {
		t.Error("ValidateToken() should fail with different secret key")
	}
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	config := testJWTConfig()
	config.TokenDuration = 1 * time.Millisecond
	manager := NewJWTManager(config)

	token, err := manager.GenerateToken("user-123", "alice")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	_, err = manager.ValidateToken(token)
	if err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}
