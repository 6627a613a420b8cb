package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/tutorhub/core"
)

func TestConfig_RequireSecretKey(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		key     string
		wantErr string
	}{
		{name: "dev default", env: "DEV"},
		{name: "prod default", env: "PROD", wantErr: "development default"},
		{name: "prod override", env: "PROD", key: "prod-secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENV", tt.env)
			t.Setenv("TUTORHUB_SECRETKEY", tt.key) // empty falls back to the default

			conf := core.NewConfig()
			err := conf.RequireSecretKey()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}

	assert.Error(t, (&core.Config{Env: "DEV"}).RequireSecretKey())
}
