package search

import "github.com/hyperjump/ruiji/internal/models"

// ProcessQuery validates and applies limit defaults to the search query.
func ProcessQuery(query *models.SearchQuery, defaultLimit, maxLimit int) error {
	return query.Validate(defaultLimit, maxLimit)
}
