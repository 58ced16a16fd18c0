package implementation

import (
	"context"

	"nutrilens-be/internal/model"
	"nutrilens-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type deviceEventRepository struct {
	db *gorm.DB
}

func NewDeviceEventRepository(db *gorm.DB) contract.DeviceEventRepository {
	return &deviceEventRepository{db: db}
}

func (r *deviceEventRepository) Create(ctx context.Context, event *model.DeviceEvent) error {
	if event.Id == uuid.Nil {
		event.Id = uuid.New()
	}
	return r.db.WithContext(ctx).Create(event).Error
}
