// Package domain contains the core types of the conversation control panel.
package domain

// Business is a promotable entity from the backend catalog.
// It is read-only for the panel.
type Business struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	IndustryCategory string `json:"industry_category"`
	Description      string `json:"description"`
}

// FindBusiness returns the business with the given id, or nil.
func FindBusiness(businesses []Business, id string) *Business {
	for i := range businesses {
		if businesses[i].ID == id {
			b := businesses[i]
			return &b
		}
	}
	return nil
}
