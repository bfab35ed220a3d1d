package models

// GetAllModels returns all model types for migration
func GetAllModels() []interface{} {
	return []interface{}{
		// User models
		&User{},
		&Session{},

		// Land models
		&Land{},

		// Transfer models
		&Transfer{},

		// Audit models
		&AuditLog{},
	}
}
