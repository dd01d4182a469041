package remote

// Graph is the nested entity graph returned by one Fetch, merged across
// pages. Timestamps stay as the remote sent them; parsing and validation
// happen per record during reconciliation.
type Graph struct {
	Sites     []Site
	Pages     int
	Truncated bool
}

// BuildingCount returns the number of buildings across all sites.
func (g *Graph) BuildingCount() int {
	n := 0
	for _, s := range g.Sites {
		n += len(s.Buildings)
	}
	return n
}

type Site struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Buildings []Building `json:"buildings"`
}

type Building struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	ExactType   string       `json:"exactType"`
	Address     *Address     `json:"address"`
	Geolocation *Geolocation `json:"geolocation"`
	DateCreated string       `json:"dateCreated"`
	DateUpdated string       `json:"dateUpdated"`
	Floors      []Floor      `json:"floors"`
	Points      []Point      `json:"points"`
}

type Address struct {
	StreetAddress string `json:"streetAddress"`
	Locality      string `json:"locality"`
	Region        string `json:"region"`
	PostalCode    string `json:"postalCode"`
	CountryName   string `json:"countryName"`
}

type Geolocation struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type Floor struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Level       *int    `json:"level"`
	DateCreated string  `json:"dateCreated"`
	DateUpdated string  `json:"dateUpdated"`
	Spaces      []Space `json:"spaces"`
	Points      []Point `json:"points"`
}

type Space struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ExactType   string  `json:"exactType"`
	DateCreated string  `json:"dateCreated"`
	DateUpdated string  `json:"dateUpdated"`
	Points      []Point `json:"points"`
}

type Point struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	ExactType   string        `json:"exactType"`
	Unit        *Unit         `json:"unit"`
	Series      []SeriesValue `json:"series"`
}

type Unit struct {
	Name string `json:"name"`
}

// SeriesValue mirrors the remote union: at most one *Value field is set.
type SeriesValue struct {
	Timestamp    string   `json:"timestamp"`
	Float64Value *float64 `json:"float64Value"`
	Float32Value *float32 `json:"float32Value"`
	StringValue  *string  `json:"stringValue"`
	BoolValue    *bool    `json:"boolValue"`
}

// response envelopes

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlResponse struct {
	Data   *gqlData   `json:"data"`
	Errors []gqlError `json:"errors"`
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type gqlData struct {
	Sites *siteConnection `json:"sites"`
}

type siteConnection struct {
	Nodes    []Site   `json:"nodes"`
	PageInfo pageInfo `json:"pageInfo"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}
