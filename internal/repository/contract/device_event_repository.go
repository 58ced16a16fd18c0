package contract

import (
	"context"

	"nutrilens-be/internal/model"
)

type DeviceEventRepository interface {
	Create(ctx context.Context, event *model.DeviceEvent) error
}
