package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/qcom/accounts/internal/config"
	"github.com/qcom/accounts/internal/handlers"
	"github.com/qcom/accounts/internal/middleware"
	"github.com/qcom/accounts/internal/notification"
	"github.com/qcom/accounts/internal/repository"
	"github.com/qcom/accounts/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("log_level", cfg.Server.LogLevel).Warn("Unknown log level, using info")
	}

	dynamoClient, err := initDynamoDB(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize DynamoDB")
	}

	redisClient := initRedis(cfg, logger)
	defer redisClient.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository(dynamoClient, cfg.DynamoDB.TableName, logger)

	var otpStore service.OTPStore
	switch cfg.OTP.Store {
	case config.StoreRedis:
		otpStore = repository.NewRedisOTPRepository(redisClient, cfg.OTP.RetentionGrace, logger)
	default:
		otpStore = repository.NewOTPRepository(dynamoClient, cfg.DynamoDB.TableName, cfg.OTP.RetentionGrace, logger)
	}
	logger.WithField("otp_store", cfg.OTP.Store).Info("OTP store selected")

	// Initialize services
	jwtService, err := service.NewJWTService(&cfg.JWT, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize JWT service")
	}

	mailer := notification.NewMailer(
		notification.ProvidersFromConfig(&cfg.Email, logger),
		service.OTPLifetime,
		cfg.Email.SendTimeout,
		logger,
	)

	otpService := service.NewOTPService(otpStore, mailer, logger)

	var refreshTokens service.RefreshTokenStore
	switch cfg.JWT.RefreshStore {
	case config.StoreDynamoDB:
		refreshTokens = repository.NewRefreshTokenRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	default:
		refreshTokens = service.NewRefreshTokenService(redisClient, logger)
	}
	logger.WithField("refresh_token_store", cfg.JWT.RefreshStore).Info("Refresh token store selected")

	accountService := service.NewAccountService(userRepo, otpService, jwtService, refreshTokens, mailer, logger)

	healthHandlers := handlers.NewHealthHandlers(map[string]handlers.Pinger{
		"dynamodb": handlers.PingFunc(func(ctx context.Context) error {
			_, err := dynamoClient.DescribeTable(ctx, &dynamodb.DescribeTableInput{
				TableName: aws.String(cfg.DynamoDB.TableName),
			})
			return err
		}),
		"redis": handlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	}, mailer, logger)

	authMiddleware := middleware.NewAuthMiddleware(jwtService, logger)
	router := handlers.NewRouter(
		handlers.NewAuthHandlers(accountService, logger),
		handlers.NewAccountHandlers(accountService, logger),
		healthHandlers,
		authMiddleware,
		cfg.Server.AllowedOrigins,
		logger,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithRegion(cfg.DynamoDB.Region))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}

func initRedis(cfg *config.Config, logger *logrus.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("Redis not reachable at startup")
	} else {
		logger.WithField("endpoint", cfg.Redis.Endpoint).Info("Redis client initialized")
	}

	return client
}
