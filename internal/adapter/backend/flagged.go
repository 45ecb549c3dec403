package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// FlaggedQuery filters the flagged-pharmacy listing. Empty filters are omitted.
type FlaggedQuery struct {
	Pharmacy  string
	State     string
	LGA       string
	Drug      string
	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

func (q FlaggedQuery) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("pharmacy", q.Pharmacy)
	set("state", q.State)
	set("lga", q.LGA)
	set("drug", q.Drug)

	sortBy, sortOrder := q.SortBy, q.SortOrder
	if sortBy == "" {
		sortBy = "report_count"
	}
	if sortOrder == "" {
		sortOrder = "desc"
	}
	v.Set("sort_by", sortBy)
	v.Set("sort_order", sortOrder)

	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	v.Set("page", strconv.Itoa(page))
	v.Set("limit", strconv.Itoa(limit))
	return v
}

// FlaggedPharmacy aggregates reports against one pharmacy.
type FlaggedPharmacy struct {
	Pharmacy      string   `json:"pharmacy"`
	ReportCount   int      `json:"report_count"`
	StreetAddress string   `json:"street_address"`
	LGA           string   `json:"lga"`
	State         string   `json:"state"`
	Drugs         []string `json:"drugs"`
	Lat           *float64 `json:"lat"`
	Lng           *float64 `json:"lng"`
}

// HasLocation reports whether the pharmacy can be placed on a map.
func (p FlaggedPharmacy) HasLocation() bool {
	return p.Lat != nil && p.Lng != nil && (*p.Lat != 0 || *p.Lng != 0)
}

// Report is one stored report as listed by the backend.
type Report struct {
	DrugName      string `json:"drug_name"`
	NafdacRegNo   string `json:"nafdac_reg_no"`
	PharmacyName  string `json:"pharmacy_name"`
	Description   string `json:"description"`
	State         string `json:"state"`
	LGA           string `json:"lga"`
	StreetAddress string `json:"street_address"`
	ImageURL      string `json:"image_url"`
	Timestamp     string `json:"timestamp"`
}

// DrugCount is one entry of the summary's most-reported drugs.
type DrugCount struct {
	DrugName string `json:"drug_name"`
	Count    int    `json:"count"`
}

// Summary holds the listing totals.
type Summary struct {
	TotalFlaggedPharmacies int         `json:"total_flagged_pharmacies"`
	TotalReports           int         `json:"total_reports"`
	TopDrugs               []DrugCount `json:"top_drugs"`
}

// FlaggedPage is one page of the flagged-pharmacy listing.
type FlaggedPage struct {
	FlaggedPharmacies []FlaggedPharmacy `json:"flagged_pharmacies"`
	AllReports        []Report          `json:"all_reports"`
	Summary           Summary           `json:"summary"`
	TotalFiltered     int               `json:"total_filtered"`
}

// TopDrug returns the most reported drug name, or "None".
func (p FlaggedPage) TopDrug() string {
	if len(p.Summary.TopDrugs) == 0 || p.Summary.TopDrugs[0].DrugName == "" {
		return "None"
	}
	return p.Summary.TopDrugs[0].DrugName
}

// GetFlagged fetches one page of flagged pharmacies.
func (c *Client) GetFlagged(ctx context.Context, q FlaggedQuery) (FlaggedPage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/get-flagged", q.values(), nil)
	if err != nil {
		return FlaggedPage{}, err
	}
	var page FlaggedPage
	if err := c.do(req, "get-flagged", &page); err != nil {
		return FlaggedPage{}, err
	}
	return page, nil
}

// PharmacyReports is the detail view for one flagged pharmacy. Fields beyond
// the count are kept raw.
type PharmacyReports struct {
	ReportCount int                        `json:"report_count"`
	Reports     []Report                   `json:"reports"`
	Extra       map[string]json.RawMessage `json:"-"`
}

// GetPharmacyReports fetches the reports filed against one pharmacy.
func (c *Client) GetPharmacyReports(ctx context.Context, pharmacy string) (PharmacyReports, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/get-flagged/"+url.PathEscape(pharmacy)+"/reports", nil, nil)
	if err != nil {
		return PharmacyReports{}, err
	}
	var raw map[string]json.RawMessage
	if err := c.do(req, "get-flagged-reports", &raw); err != nil {
		return PharmacyReports{}, err
	}

	var out PharmacyReports
	if v, ok := raw["report_count"]; ok {
		if err := json.Unmarshal(v, &out.ReportCount); err != nil {
			return PharmacyReports{}, malformed("get-flagged-reports", "report_count", err)
		}
		delete(raw, "report_count")
	}
	if v, ok := raw["reports"]; ok {
		if err := json.Unmarshal(v, &out.Reports); err != nil {
			return PharmacyReports{}, malformed("get-flagged-reports", "reports", err)
		}
		delete(raw, "reports")
	}
	if len(raw) > 0 {
		out.Extra = raw
	}
	return out, nil
}

// malformed reports a response field that did not decode.
func malformed(endpoint, field string, err error) error {
	return fmt.Errorf("decode %s response: %w", endpoint, &APIError{Endpoint: endpoint, Status: http.StatusOK, Body: field + ": " + err.Error()})
}
