// Package models contains GORM-specific persistence models that map to the
// tables of a tenant partition. Domain entities stay free of ORM tags;
// repositories convert with ToDomain and the *FromDomain helpers.
//
// Every tenant database carries the same static schema, see TenantSchema.
package models
