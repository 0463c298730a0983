package service

import (
	"github.com/bitfantasy/backoffice/internal/config"
	"github.com/bitfantasy/backoffice/internal/erp/repository"
	"github.com/bitfantasy/backoffice/internal/shared/mailer"
	"github.com/bitfantasy/backoffice/internal/shared/sse"
	"github.com/bitfantasy/backoffice/internal/shared/translate"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services service aggregate
type Services struct {
	Master       *MasterService
	UOM          *UOMService
	SKU          *SKUService
	Approval     *ApprovalService
	Notification *NotificationService
	Admins       *AdminDirectory
	Naming       *NamingService
	Permission   *repository.PermissionRepository
	Events       *sse.Hub
}

// NewServices wires every service and registers the approval appliers
func NewServices(db *gorm.DB, repos *repository.Repositories, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *Services {
	// MinIO is optional; without it exports are not archived
	var storage ObjectPutter
	if cfg.MinIO.Endpoint != "" {
		client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			logger.Warn("minio disabled", zap.Error(err))
		} else {
			storage = client
		}
	}

	var sender MailSender
	if m := mailer.New(cfg.Mail); m != nil {
		sender = m
	} else {
		logger.Info("gmail credentials not set, approval mail disabled")
	}

	admins := NewAdminDirectory(repos.User)
	notifications := NewNotificationService(admins, sender, cfg.Approval.NotifyConcurrency, cfg.Approval.NotifyTimeout, logger)
	naming := NewNamingService(translate.FromConfig(cfg.Translation, rdb, logger), logger)

	svc := &Services{
		Master:       NewMasterService(db, repos.Master, naming, logger),
		UOM:          NewUOMService(db, repos.UOM, repos.Master, logger),
		SKU:          NewSKUService(db, repos.SKU, storage, cfg.MinIO.Bucket, logger),
		Approval:     NewApprovalService(repos.Approval, repos.ActivityLog, notifications, db, logger),
		Notification: notifications,
		Admins:       admins,
		Naming:       naming,
		Permission:   repos.Permission,
		Events:       sse.NewHub(logger),
	}
	svc.Approval.SetEventPublisher(svc.Events)

	for _, res := range Resources() {
		svc.Approval.RegisterApplier(res.EntityType, svc.Master.Applier(res))
	}
	svc.Approval.RegisterApplier(UOMConversionEntityType, svc.UOM)
	svc.Approval.RegisterApplier(SKUEntityType, svc.SKU)
	return svc
}
