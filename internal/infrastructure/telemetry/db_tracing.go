package telemetry

import (
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/gorm"
)

// InstrumentDB registers the otelgorm plugin on a tenant partition handle so
// every statement becomes a child span tagged with its tenant and database.
// Query variables are left out of spans.
func InstrumentDB(db *gorm.DB, tenant, dbName string) error {
	return db.Use(otelgorm.NewPlugin(
		otelgorm.WithDBName(dbName),
		otelgorm.WithAttributes(AttrTenant.String(tenant)),
		otelgorm.WithoutQueryVariables(),
		otelgorm.WithoutMetrics(),
	))
}
