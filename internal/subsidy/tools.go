package subsidy

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/ent0n29/hojokin/internal/tool"
)

// API is the subset of Client the tools depend on.
type API interface {
	ListSubsidies(ctx context.Context, f ListFilters) (*ListResult, error)
	GetSubsidyDetail(ctx context.Context, id string) (*Detail, error)
	Search(ctx context.Context, q SearchQuery) (*ListResult, error)
}

var _ API = (*Client)(nil)

// Tools returns the J-Grants tools bound for a registry.
func Tools(api API) []tool.Handler {
	return []tool.Handler{
		tool.Bind[ListFilters, ListOutput](&ListTool{api: api}),
		tool.Bind[DetailInput, DetailOutput](&DetailTool{api: api}),
		tool.Bind[SearchQuery, SearchOutput](&SearchTool{api: api}),
	}
}

var subsidySchema = tool.Object(map[string]*jsonschema.Schema{
	"id":                         tool.String("補助金ID"),
	"title":                      tool.String("補助金名"),
	"subsidy_max_limit":          tool.Number("補助上限額"),
	"acceptance_start_datetime":  tool.String("受付開始日時"),
	"acceptance_end_datetime":    tool.String("受付終了日時"),
	"target_area_search":         tool.String("補助対象地域"),
	"target_industry":            tool.String("対象業種"),
	"target_number_of_employees": tool.String("従業員数制約"),
	"use_purpose":                tool.String("利用目的"),
	"detail":                     tool.String("概要"),
}, "id", "title")

// ListOutput is the result of jgrants-get-subsidies.
type ListOutput struct {
	Success    bool      `json:"success"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	Subsidies  []Subsidy `json:"subsidies"`
	Message    string    `json:"message"`
}

type ListTool struct{ api API }

var _ tool.Tool[ListFilters, ListOutput] = (*ListTool)(nil)

func (t *ListTool) Name() string           { return "jgrants-get-subsidies" }
func (t *ListTool) Description() string    { return "J-Grantsから補助金一覧を取得します" }
func (t *ListTool) FailureMessage() string { return "補助金一覧の取得に失敗しました" }

func (t *ListTool) InputSchema() *jsonschema.Schema {
	return tool.Object(map[string]*jsonschema.Schema{
		"keyword":                    tool.StringLen("検索キーワード（2-255文字）。既定値: 事業", keywordMinLen, keywordMaxLen),
		"sort":                       tool.Enum("ソート基準（作成日、受付開始日時、受付終了日時）。既定値: created_date", sortValues...),
		"order":                      tool.Enum("ソート順序（昇順、降順）。既定値: DESC", orderValues...),
		"acceptance":                 tool.Enum("受付状況（0：全て、1：受付中のみ）。既定値: 1", acceptanceValues...),
		"use_purpose":                tool.StringLen("利用目的（最大255文字）", 0, filterMaxLen),
		"industry":                   tool.StringLen("業種（最大255文字）", 0, filterMaxLen),
		"target_number_of_employees": tool.String("従業員数制約"),
		"target_area_search":         tool.String("補助対象地域"),
	})
}

func (t *ListTool) OutputSchema() *jsonschema.Schema {
	return tool.Object(map[string]*jsonschema.Schema{
		"success":     tool.Bool("成功したか"),
		"total_count": tool.Integer("総件数"),
		"page":        tool.Integer("ページ番号"),
		"limit":       tool.Integer("1ページの件数"),
		"subsidies":   tool.Array("補助金一覧", subsidySchema),
		"message":     tool.String("結果メッセージ"),
	}, "success", "message")
}

func (t *ListTool) Execute(ctx context.Context, in ListFilters) (ListOutput, error) {
	res, err := t.api.ListSubsidies(ctx, in)
	if err != nil {
		return ListOutput{}, err
	}
	return ListOutput{
		Success:    true,
		TotalCount: res.TotalCount,
		Page:       res.Page,
		Limit:      res.Limit,
		Subsidies:  res.Subsidies,
		Message: fmt.Sprintf("%d件中%d件の補助金情報を取得しました（ページ%d/%d）",
			res.TotalCount, len(res.Subsidies), res.Page, res.Pages()),
	}, nil
}

// DetailInput is the argument of jgrants-get-subsidy-detail.
type DetailInput struct {
	ID string `json:"id"`
}

// DetailOutput is the result of jgrants-get-subsidy-detail.
type DetailOutput struct {
	Success bool    `json:"success"`
	Subsidy *Detail `json:"subsidy,omitempty"`
	Message string  `json:"message"`
}

type DetailTool struct{ api API }

var _ tool.Tool[DetailInput, DetailOutput] = (*DetailTool)(nil)

func (t *DetailTool) Name() string           { return "jgrants-get-subsidy-detail" }
func (t *DetailTool) Description() string    { return "指定されたIDの補助金詳細情報を取得します" }
func (t *DetailTool) FailureMessage() string { return "補助金詳細の取得に失敗しました" }

func (t *DetailTool) InputSchema() *jsonschema.Schema {
	return tool.Object(map[string]*jsonschema.Schema{
		"id": tool.StringLen("補助金ID（18文字以下）", 1, idMaxLen),
	}, "id")
}

func (t *DetailTool) OutputSchema() *jsonschema.Schema {
	detail := tool.Object(map[string]*jsonschema.Schema{
		"id":                         tool.String("補助金ID"),
		"title":                      tool.String("補助金名"),
		"detail":                     tool.String("詳細（テキスト）"),
		"subsidy_max_limit":          tool.Number("補助上限額"),
		"subsidy_rate":               tool.String("補助率"),
		"acceptance_start_datetime":  tool.String("受付開始日時"),
		"acceptance_end_datetime":    tool.String("受付終了日時"),
		"target_area_search":         tool.String("補助対象地域"),
		"target_industry":            tool.String("対象業種"),
		"target_number_of_employees": tool.String("従業員数制約"),
		"inquiry_url":                tool.String("問い合わせ先URL"),
		"update_datetime":            tool.String("更新日時"),
		"has_application_guidelines": tool.Bool("公募要領の有無"),
		"has_outline_of_grant":       tool.Bool("交付要綱の有無"),
		"has_application_form":       tool.Bool("申請様式の有無"),
	}, "id", "title")
	return tool.Object(map[string]*jsonschema.Schema{
		"success": tool.Bool("成功したか"),
		"subsidy": detail,
		"message": tool.String("結果メッセージ"),
	}, "success", "message")
}

func (t *DetailTool) Execute(ctx context.Context, in DetailInput) (DetailOutput, error) {
	d, err := t.api.GetSubsidyDetail(ctx, in.ID)
	if err != nil {
		return DetailOutput{}, err
	}
	return DetailOutput{
		Success: true,
		Subsidy: d,
		Message: fmt.Sprintf("補助金「%s」の詳細情報を取得しました", d.Title),
	}, nil
}

// SearchOutput is the result of jgrants-search-subsidies.
type SearchOutput struct {
	Success    bool      `json:"success"`
	TotalCount int       `json:"total_count"`
	Subsidies  []Subsidy `json:"subsidies"`
	Message    string    `json:"message"`
}

type SearchTool struct{ api API }

var _ tool.Tool[SearchQuery, SearchOutput] = (*SearchTool)(nil)

func (t *SearchTool) Name() string           { return "jgrants-search-subsidies" }
func (t *SearchTool) Description() string    { return "条件を指定して補助金を検索します（簡単インターフェース）" }
func (t *SearchTool) FailureMessage() string { return "補助金検索に失敗しました" }

func (t *SearchTool) InputSchema() *jsonschema.Schema {
	return tool.Object(map[string]*jsonschema.Schema{
		"searchQuery": tool.StringLen("検索したい内容やキーワード。既定値: 事業", keywordMinLen, keywordMaxLen),
		"onlyActive":  tool.Bool("受付中の補助金のみを検索するか。既定値: true"),
		"industry":    tool.String("対象業種"),
		"area":        tool.String("対象地域"),
	})
}

func (t *SearchTool) OutputSchema() *jsonschema.Schema {
	return tool.Object(map[string]*jsonschema.Schema{
		"success":     tool.Bool("成功したか"),
		"total_count": tool.Integer("総件数"),
		"subsidies":   tool.Array("補助金一覧", subsidySchema),
		"message":     tool.String("結果メッセージ"),
	}, "success", "message")
}

func (t *SearchTool) Execute(ctx context.Context, in SearchQuery) (SearchOutput, error) {
	res, err := t.api.Search(ctx, in)
	if err != nil {
		return SearchOutput{}, err
	}
	return SearchOutput{
		Success:    true,
		TotalCount: res.TotalCount,
		Subsidies:  res.Subsidies,
		Message:    fmt.Sprintf("「%s」で%d件の補助金が見つかりました（表示: %d件）", in.Query, res.TotalCount, len(res.Subsidies)),
	}, nil
}
