package config

import (
	"github.com/caarlos0/env/v10"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`

	DBType     string `env:"DBType" envDefault:"sqlite"`
	DSNURL     string `env:"DSN_URL" envDefault:""`
	DBUser     string `env:"DBUser" envDefault:""`
	DBPassword string `env:"DBPassword" envDefault:""`
	DBAddr     string `env:"DBAddr" envDefault:""`
	DBName     string `env:"DBName" envDefault:"yourank"`
	DBPath     string `env:"DBPath" envDefault:"datas/yourank.db"`
	DBPort     string `env:"DBPort" envDefault:"3306"`

	// DataForSEO 接口配置
	DataForSEOBaseURL        string `env:"DATAFORSEO_BASE_URL" envDefault:"https://api.dataforseo.com/v3"`
	DataForSEOLogin          string `env:"DATAFORSEO_LOGIN" envDefault:""`
	DataForSEOPassword       string `env:"DATAFORSEO_PASSWORD" envDefault:""`
	DataForSEOTimeoutSeconds int    `env:"DATAFORSEO_TIMEOUT_SECONDS" envDefault:"60"`

	// 异步任务轮询配置
	TaskPollIntervalSeconds int `env:"TASK_POLL_INTERVAL_SECONDS" envDefault:"5"`
	TaskMaxDurationSeconds  int `env:"TASK_MAX_DURATION_SECONDS" envDefault:"900"`
	TaskMaxPollFailures     int `env:"TASK_MAX_POLL_FAILURES" envDefault:"3"`

	// 点数策略。异步任务在提交时扣点；CreditRefundOnFailure 控制任务最终失败
	// （含超时与取消）时是否退还本次扣点。
	CreditRefundOnFailure bool  `env:"CREDIT_REFUND_ON_FAILURE" envDefault:"false"`
	SignupCredits         int64 `env:"SIGNUP_CREDITS" envDefault:"100"`

	StorageType          string `env:"STORAGE_TYPE" envDefault:"local"`
	StorageLocalDir      string `env:"STORAGE_LOCAL_DIR" envDefault:"datas/exports"`
	StoragePublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL" envDefault:"/files"`

	// S3 兼容存储配置
	StorageS3Region          string `env:"STORAGE_S3_REGION"`
	StorageS3Bucket          string `env:"STORAGE_S3_BUCKET"`
	StorageS3Prefix          string `env:"STORAGE_S3_PREFIX"`
	StorageS3Endpoint        string `env:"STORAGE_S3_ENDPOINT"`
	StorageS3AccessKeyID     string `env:"STORAGE_S3_ACCESS_KEY_ID"`
	StorageS3SecretAccessKey string `env:"STORAGE_S3_SECRET_ACCESS_KEY"`
	StorageS3SessionToken    string `env:"STORAGE_S3_SESSION_TOKEN"`
	StorageS3ForcePathStyle  bool   `env:"STORAGE_S3_FORCE_PATH_STYLE" envDefault:"false"`

	// Cloudflare R2 存储配置
	StorageR2AccountID       string `env:"STORAGE_R2_ACCOUNT_ID"`
	StorageR2Endpoint        string `env:"STORAGE_R2_ENDPOINT"`
	StorageR2Region          string `env:"STORAGE_R2_REGION" envDefault:"auto"`
	StorageR2Bucket          string `env:"STORAGE_R2_BUCKET"`
	StorageR2Prefix          string `env:"STORAGE_R2_PREFIX"`
	StorageR2AccessKeyID     string `env:"STORAGE_R2_ACCESS_KEY_ID"`
	StorageR2SecretAccessKey string `env:"STORAGE_R2_SECRET_ACCESS_KEY"`

	JWTSecret            string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTIssuer            string `env:"JWT_ISSUER" envDefault:"yourank-app"`
	JWTExpirationMinutes int    `env:"JWT_EXPIRATION_MINUTES" envDefault:"1440"`
}

func ParseConfig() (Config, error) {
	var Conf Config
	err := env.Parse(&Conf)
	if err != nil {
		logrus.WithError(err).Error("env.Parse error")
		return Config{}, err
	}
	logrus.Debugf("%#v\n", Conf)
	return Conf, nil
}
