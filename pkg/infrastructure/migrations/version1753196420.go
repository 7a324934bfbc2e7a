package migrations

import (
	"context"

	"github.com/pkg/errors"

	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/migrator"
	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/mysql"
)

func newVersion1753196420(client mysql.ClientContext) migrator.Migration {
	return &version1753196420{
		client: client,
	}
}

type version1753196420 struct {
	client mysql.ClientContext
}

func (v version1753196420) Version() int64 {
	return 1753196420
}

func (v version1753196420) Description() string {
	return "Create 'orders' table"
}

func (v version1753196420) Up(ctx context.Context) error {
	_, err := v.client.ExecContext(ctx, `
		CREATE TABLE orders
		(
		    id             CHAR(36)        NOT NULL,
		    customer_name  VARCHAR(255)    NOT NULL,
		    amount         DECIMAL(18, 2)  NOT NULL,
		    status         VARBINARY(32)   NOT NULL,
		    created_at     DATETIME(6)     NOT NULL,
		    PRIMARY KEY (id),
		    KEY idx_orders_customer_name_created_at (customer_name, created_at)
		)
		    ENGINE = InnoDB
		    CHARACTER SET = utf8mb4
		    COLLATE utf8mb4_unicode_ci
	`)
	return errors.WithStack(err)
}
