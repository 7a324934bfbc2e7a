package migrations

import (
	"context"

	"github.com/pkg/errors"

	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/migrator"
	"gitea.xscloud.ru/xscloud/orders/pkg/infrastructure/mysql"
)

func newVersion1753196584(client mysql.ClientContext) migrator.Migration {
	return &version1753196584{
		client: client,
	}
}

type version1753196584 struct {
	client mysql.ClientContext
}

func (v version1753196584) Version() int64 {
	return 1753196584
}

func (v version1753196584) Description() string {
	return "Create 'outbox_record' table"
}

func (v version1753196584) Up(ctx context.Context) error {
	_, err := v.client.ExecContext(ctx, `
		CREATE TABLE outbox_record
		(
		    id            CHAR(36)        NOT NULL,
		    message_type  VARBINARY(128)  NOT NULL,
		    payload       TEXT            NOT NULL,
		    status        VARBINARY(32)   NOT NULL,
		    created_at    DATETIME(6)     NOT NULL,
		    processed_at  DATETIME(6)     NULL,
		    PRIMARY KEY (id),
		    KEY idx_outbox_record_status_created_at (status, created_at)
		)
		    ENGINE = InnoDB
		    CHARACTER SET = utf8mb4
		    COLLATE utf8mb4_unicode_ci
	`)
	return errors.WithStack(err)
}
