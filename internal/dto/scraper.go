package dto

// PortfolioDayRequest is the payload the B3 index proxy expects, base64
// encoded into the request path.
type PortfolioDayRequest struct {
	Language   string `json:"language"`
	PageNumber int    `json:"pageNumber"`
	PageSize   int    `json:"pageSize"`
	Index      string `json:"index"`
	Segment    string `json:"segment"`
	Date       string `json:"date,omitempty"`
}

// PortfolioDayResponse is the JSON document returned by the B3 index proxy.
type PortfolioDayResponse struct {
	Page struct {
		PageNumber   int `json:"pageNumber"`
		PageSize     int `json:"pageSize"`
		TotalRecords int `json:"totalRecords"`
		TotalPages   int `json:"totalPages"`
	} `json:"page"`
	Results []PortfolioAsset `json:"results"`
}

// PortfolioAsset is one composition row as B3 publishes it, numbers still in
// locale-formatted text.
type PortfolioAsset struct {
	Cod          string `json:"cod"`
	Asset        string `json:"asset"`
	Type         string `json:"type"`
	TheoricalQty string `json:"theoricalQty"`
	Part         string `json:"part"`
}

// ScrapeResult summarizes one single-day collection run.
type ScrapeResult struct {
	Date       string `json:"date"`
	Total      int    `json:"total"`
	Saved      int    `json:"saved"`
	Duplicates int    `json:"duplicates"`
	Source     string `json:"source"`
}

// BackfillResult summarizes a historical collection run.
type BackfillResult struct {
	Months        int     `json:"months"`
	DaysScraped   int     `json:"days_scraped"`
	TotalSaved    int     `json:"total_saved"`
	AveragePerDay float64 `json:"average_per_day"`
	Errors        int     `json:"errors"`
}
