package config

import "time"

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	TokenExpiration   time.Duration `mapstructure:"token_expiration"`
	BcryptCost        int           `mapstructure:"bcrypt_cost"`
	PasswordMinLength int           `mapstructure:"password_min_length"`
	MaxLoginAttempts  int           `mapstructure:"max_login_attempts"`
	LockoutDuration   time.Duration `mapstructure:"lockout_duration"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	UserTTL time.Duration `mapstructure:"user_ttl"`
}

type TFAConfig struct {
	Issuer               string        `mapstructure:"issuer"`
	Period               int           `mapstructure:"period"`
	Digits               int           `mapstructure:"digits"`
	Skew                 int           `mapstructure:"skew"`
	BackupCodeCount      int           `mapstructure:"backup_code_count"`
	BackupCodeLength     int           `mapstructure:"backup_code_length"`
	ChallengeTTL         time.Duration `mapstructure:"challenge_ttl"`
	ChallengeMaxAttempts int           `mapstructure:"challenge_max_attempts"`
}

type OAuthProviderConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	AuthURL      string   `mapstructure:"auth_url"`
	TokenURL     string   `mapstructure:"token_url"`
	UserInfoURL  string   `mapstructure:"user_info_url"`
	Scopes       []string `mapstructure:"scopes"`
}

type OAuthConfig struct {
	StateTTL  time.Duration                  `mapstructure:"state_ttl"`
	Providers map[string]OAuthProviderConfig `mapstructure:"providers"`
}

type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	TFA      TFAConfig      `mapstructure:"tfa"`
	OAuth    OAuthConfig    `mapstructure:"oauth"`
}
