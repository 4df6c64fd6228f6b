package payment

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Notes mirrors the free-form key/value notes attached to a gateway order
type Notes map[string]string

func (n *Notes) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("Failed to unmarshal jsonb value: %s", value)
	}
	if bytes == nil {
		*n = make(Notes)
		return nil
	}
	return json.Unmarshal(bytes, &n)
}

func (n Notes) Value() (driver.Value, error) {
	return json.Marshal(n)
}

func (*Notes) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql", "sqlite":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}
