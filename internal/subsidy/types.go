package subsidy

import (
	"encoding/json"
	"strings"
)

const (
	SortCreatedDate     = "created_date"
	SortAcceptanceStart = "acceptance_start_datetime"
	SortAcceptanceEnd   = "acceptance_end_datetime"

	OrderAsc  = "ASC"
	OrderDesc = "DESC"

	AcceptanceAll    = "0"
	AcceptanceActive = "1"

	DefaultKeyword = "事業"
)

// ListFilters are the query parameters of GET /subsidies.
type ListFilters struct {
	Keyword                 string `json:"keyword"`
	Sort                    string `json:"sort"`
	Order                   string `json:"order"`
	Acceptance              string `json:"acceptance"`
	UsePurpose              string `json:"use_purpose,omitempty"`
	Industry                string `json:"industry,omitempty"`
	TargetNumberOfEmployees string `json:"target_number_of_employees,omitempty"`
	TargetAreaSearch        string `json:"target_area_search,omitempty"`
}

func (f *ListFilters) SetDefaults() {
	f.Keyword = DefaultKeyword
	f.Sort = SortCreatedDate
	f.Order = OrderDesc
	f.Acceptance = AcceptanceActive
}

// SearchQuery is the simplified search interface.
type SearchQuery struct {
	Query      string `json:"searchQuery"`
	OnlyActive bool   `json:"onlyActive"`
	Industry   string `json:"industry,omitempty"`
	Area       string `json:"area,omitempty"`
}

func (q *SearchQuery) SetDefaults() {
	q.Query = DefaultKeyword
	q.OnlyActive = true
}

// Filters expands q into list filters.
func (q SearchQuery) Filters() ListFilters {
	acceptance := AcceptanceAll
	if q.OnlyActive {
		acceptance = AcceptanceActive
	}
	return ListFilters{
		Keyword:          q.Query,
		Sort:             SortAcceptanceStart,
		Order:            OrderDesc,
		Acceptance:       acceptance,
		Industry:         q.Industry,
		TargetAreaSearch: q.Area,
	}
}

// Subsidy is one normalized list entry.
type Subsidy struct {
	ID                      string      `json:"id"`
	Title                   string      `json:"title"`
	SubsidyMaxLimit         json.Number `json:"subsidy_max_limit,omitempty"`
	AcceptanceStartDatetime string      `json:"acceptance_start_datetime,omitempty"`
	AcceptanceEndDatetime   string      `json:"acceptance_end_datetime,omitempty"`
	TargetAreaSearch        string      `json:"target_area_search,omitempty"`
	TargetIndustry          string      `json:"target_industry,omitempty"`
	TargetNumberOfEmployees string      `json:"target_number_of_employees,omitempty"`
	UsePurpose              string      `json:"use_purpose,omitempty"`
	Detail                  string      `json:"detail,omitempty"`
}

// ListResult is a normalized page of subsidies.
type ListResult struct {
	Subsidies  []Subsidy `json:"subsidies"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
}

// Pages is the page count implied by TotalCount and Limit.
func (r ListResult) Pages() int {
	if r.Limit <= 0 || r.TotalCount <= 0 {
		return 1
	}
	return (r.TotalCount + r.Limit - 1) / r.Limit
}

// Detail is a normalized subsidy detail. Attached documents are reduced to presence flags.
type Detail struct {
	ID                       string      `json:"id"`
	Title                    string      `json:"title"`
	Detail                   string      `json:"detail,omitempty"`
	SubsidyMaxLimit          json.Number `json:"subsidy_max_limit,omitempty"`
	SubsidyRate              string      `json:"subsidy_rate,omitempty"`
	AcceptanceStartDatetime  string      `json:"acceptance_start_datetime,omitempty"`
	AcceptanceEndDatetime    string      `json:"acceptance_end_datetime,omitempty"`
	TargetAreaSearch         string      `json:"target_area_search,omitempty"`
	TargetIndustry           string      `json:"target_industry,omitempty"`
	TargetNumberOfEmployees  string      `json:"target_number_of_employees,omitempty"`
	InquiryURL               string      `json:"inquiry_url,omitempty"`
	UpdateDatetime           string      `json:"update_datetime,omitempty"`
	HasApplicationGuidelines bool        `json:"has_application_guidelines"`
	HasOutlineOfGrant        bool        `json:"has_outline_of_grant"`
	HasApplicationForm       bool        `json:"has_application_form"`
}

type rawList struct {
	Result     []Subsidy `json:"result"`
	TotalCount *int      `json:"total_count"`
	Page       *int      `json:"page"`
	Limit      *int      `json:"limit"`
	Metadata   *struct {
		ResultSet struct {
			Count int `json:"count"`
		} `json:"resultset"`
	} `json:"metadata"`
}

func (r rawList) normalize() *ListResult {
	out := &ListResult{
		Subsidies:  r.Result,
		TotalCount: len(r.Result),
		Page:       1,
		Limit:      len(r.Result),
	}
	if out.Subsidies == nil {
		out.Subsidies = []Subsidy{}
	}
	switch {
	case r.TotalCount != nil:
		out.TotalCount = *r.TotalCount
	case r.Metadata != nil:
		out.TotalCount = r.Metadata.ResultSet.Count
	}
	if r.Page != nil && *r.Page > 0 {
		out.Page = *r.Page
	}
	if r.Limit != nil && *r.Limit > 0 {
		out.Limit = *r.Limit
	}
	return out
}

type document struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

type rawDetail struct {
	ID                      string      `json:"id"`
	Title                   string      `json:"title"`
	Detail                  string      `json:"detail"`
	SubsidyMaxLimit         json.Number `json:"subsidy_max_limit"`
	SubsidyRate             string      `json:"subsidy_rate"`
	AcceptanceStartDatetime string      `json:"acceptance_start_datetime"`
	AcceptanceEndDatetime   string      `json:"acceptance_end_datetime"`
	TargetAreaSearch        string      `json:"target_area_search"`
	TargetIndustry          string      `json:"target_industry"`
	TargetNumberOfEmployees string      `json:"target_number_of_employees"`
	InquiryURL              string      `json:"inquiry_url"`
	UpdateDatetime          string      `json:"update_datetime"`
	ApplicationGuidelines   []document  `json:"application_guidelines"`
	OutlineOfGrant          []document  `json:"outline_of_grant"`
	ApplicationForm         []document  `json:"application_form"`
}

func (r rawDetail) normalize() *Detail {
	return &Detail{
		ID:                       r.ID,
		Title:                    r.Title,
		Detail:                   plainText(r.Detail),
		SubsidyMaxLimit:          r.SubsidyMaxLimit,
		SubsidyRate:              r.SubsidyRate,
		AcceptanceStartDatetime:  r.AcceptanceStartDatetime,
		AcceptanceEndDatetime:    r.AcceptanceEndDatetime,
		TargetAreaSearch:         r.TargetAreaSearch,
		TargetIndustry:           r.TargetIndustry,
		TargetNumberOfEmployees:  r.TargetNumberOfEmployees,
		InquiryURL:               r.InquiryURL,
		UpdateDatetime:           r.UpdateDatetime,
		HasApplicationGuidelines: len(r.ApplicationGuidelines) > 0,
		HasOutlineOfGrant:        len(r.OutlineOfGrant) > 0,
		HasApplicationForm:       len(r.ApplicationForm) > 0,
	}
}

// detailEnvelope accepts {"result": {...}} as well as {"result": [{...}]}.
type detailEnvelope struct {
	Result []rawDetail
}

func (e *detailEnvelope) UnmarshalJSON(b []byte) error {
	var env struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	body := strings.TrimSpace(string(env.Result))
	switch {
	case strings.HasPrefix(body, "["):
		return json.Unmarshal(env.Result, &e.Result)
	case strings.HasPrefix(body, "{"):
		var one rawDetail
		if err := json.Unmarshal(env.Result, &one); err != nil {
			return err
		}
		e.Result = []rawDetail{one}
	}
	return nil
}
