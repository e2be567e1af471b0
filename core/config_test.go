package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	prod := func() *Config {
		conf := NewTestConfig()
		conf.Env = EnvProd
		conf.Debug = false
		conf.SecretKey = "0123456789abcdef0123456789abcdef-prod"
		conf.Auth.SysAdminUsername = "root"
		conf.Auth.SysAdminPassword = "s3cr3t-passw0rd"
		conf.SendgridApiKey = "SG.key"
		return conf
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid production", mutate: func(c *Config) {}},
		{name: "fallback secret", mutate: func(c *Config) { c.SecretKey = fallbackSecretKey }, wantErr: "secretKey must be set"},
		{name: "short secret", mutate: func(c *Config) { c.SecretKey = "short" }, wantErr: "secretKey must be set"},
		{name: "fallback sysadmin", mutate: func(c *Config) { c.Auth.SysAdminPassword = fallbackSysAdminPassword }, wantErr: "system admin credentials must be overridden"},
		{name: "debug", mutate: func(c *Config) { c.Debug = true }, wantErr: "debug must be disabled"},
		{name: "memory engine", mutate: func(c *Config) { c.Database.Engine = EngineMemory }, wantErr: "is not allowed in production"},
		{name: "unknown engine", mutate: func(c *Config) { c.Database.Engine = "mongo" }, wantErr: "database.engine must be one of"},
		{name: "non positive ttl", mutate: func(c *Config) { c.Auth.InvitationTTL = 0 }, wantErr: "auth.invitationTTL must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := prod()
			tt.mutate(conf)
			err := conf.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}

	t.Run("development fallbacks", func(t *testing.T) {
		assert.NoError(t, NewTestConfig().Validate())
	})
}
