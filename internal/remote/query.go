package remote

import "time"

// Query scopes one Fetch. The zero Query fetches the whole graph using the
// client's default page size and page ceiling.
type Query struct {
	// BuildingIDs restricts the fetch to these buildings.
	BuildingIDs []string
	// Since limits series to readings at or after it. The hierarchy is
	// always walked in full so new readings under unchanged buildings arrive.
	Since time.Time
	// PageSize and MaxPages override the client defaults when > 0.
	PageSize int
	MaxPages int
}

// Incremental reports whether the query carries a since-cursor.
func (q Query) Incremental() bool { return !q.Since.IsZero() }

func (q Query) variables(pageSize int, after string) map[string]any {
	vars := map[string]any{
		"first": pageSize,
	}
	if after != "" {
		vars["after"] = after
	}
	if len(q.BuildingIDs) > 0 {
		vars["buildingIds"] = q.BuildingIDs
	}
	if !q.Since.IsZero() {
		vars["since"] = q.Since.UTC().Format(time.RFC3339Nano)
	}
	return vars
}

// fetchGraphQuery is sent verbatim; all filtering happens through variables.
const fetchGraphQuery = `query FetchGraph($first: Int!, $after: String, $buildingIds: [ID!], $since: DateTime) {
  sites(first: $first, after: $after) {
    nodes {
      id
      name
      buildings(filter: {id: {in: $buildingIds}}) {
        id
        name
        description
        exactType
        dateCreated
        dateUpdated
        address { streetAddress locality region postalCode countryName }
        geolocation { latitude longitude }
        points { ...PointFields }
        floors {
          id
          name
          description
          level
          dateCreated
          dateUpdated
          points { ...PointFields }
          spaces {
            id
            name
            description
            exactType
            dateCreated
            dateUpdated
            points { ...PointFields }
          }
        }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}

fragment PointFields on Point {
  id
  name
  description
  exactType
  unit { name }
  series(start: $since) {
    timestamp
    float64Value
    float32Value
    stringValue
    boolValue
  }
}`
