package db

import (
	"fmt"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/domain/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Connect はDBに接続して *gorm.DB を返す。
func Connect(cfg config.Config) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return gdb, nil
}

// 1ユーザー×1商品のIN_CARTは1行だけ
const cartUniqueIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS ux_purchases_in_cart
ON purchases (user_id, store_product_id) WHERE status = 'IN_CART'`

func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&model.StoreProduct{},
		&model.Purchase{},
		&model.Shipping{},
		&model.InventoryMovement{},
		&model.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := gdb.Exec(cartUniqueIndexSQL).Error; err != nil {
		return fmt.Errorf("create cart index: %w", err)
	}
	return nil
}
