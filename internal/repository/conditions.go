package repository

import "github.com/doug-martin/goqu/v9"

// Conditions collects the optional equality filters of a list query.
type Conditions map[string]interface{}

func NewConditions() Conditions {
	return Conditions{}
}

// Add skips nil and nil pointers so optional filter fields can be passed straight through.
func (c Conditions) Add(column string, value interface{}) {
	switch v := value.(type) {
	case nil:
	case *int:
		if v != nil {
			c[column] = *v
		}
	case *string:
		if v != nil {
			c[column] = *v
		}
	default:
		c[column] = value
	}
}

func (c Conditions) Empty() bool {
	return len(c) == 0
}

// Where renders the filters, qualifying columns found in aliases.
func (c Conditions) Where(aliases map[string]string) goqu.Ex {
	ex := goqu.Ex{}
	for column, value := range c {
		if alias, ok := aliases[column]; ok {
			column = alias
		}
		ex[column] = value
	}
	return ex
}
