package subsidy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls atomic.Int32
	req   *http.Request
}

func (r *recorder) last() *http.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.req
}

func newJGrants(t *testing.T, status int, body string) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.req = r
		rec.mu.Unlock()
		rec.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL}), rec
}

const listBody = `{"result":[{"id":"a0W5h00000abcdE","title":"介護ロボット導入支援","subsidy_max_limit":3000000,"target_area_search":"東京都"}],"total_count":41,"page":1,"limit":20}`

func TestListSubsidiesQueryString(t *testing.T) {
	cases := []struct {
		name    string
		filters ListFilters
		present map[string]string
		absent  []string
	}{
		{
			name: "required only",
			filters: ListFilters{
				Keyword: "介護", Sort: SortCreatedDate, Order: OrderDesc, Acceptance: AcceptanceActive,
			},
			present: map[string]string{"keyword": "介護", "sort": "created_date", "order": "DESC", "acceptance": "1"},
			absent:  []string{"use_purpose", "industry", "target_number_of_employees", "target_area_search"},
		},
		{
			name: "all optional filters",
			filters: ListFilters{
				Keyword: "介護", Sort: SortAcceptanceEnd, Order: OrderAsc, Acceptance: AcceptanceAll,
				UsePurpose: "設備整備・IT導入をしたい", Industry: "医療、福祉",
				TargetNumberOfEmployees: "20名以下", TargetAreaSearch: "東京都",
			},
			present: map[string]string{
				"use_purpose": "設備整備・IT導入をしたい", "industry": "医療、福祉",
				"target_number_of_employees": "20名以下", "target_area_search": "東京都",
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newJGrants(t, http.StatusOK, listBody)

			_, err := c.ListSubsidies(context.Background(), tc.filters)
			require.NoError(t, err)
			require.EqualValues(t, 1, rec.calls.Load())
			assert.Equal(t, http.MethodGet, rec.last().Method)
			assert.Equal(t, "/subsidies", rec.last().URL.Path)

			q := rec.last().URL.Query()
			for k, v := range tc.present {
				assert.Equal(t, v, q.Get(k), k)
			}
			for _, k := range tc.absent {
				assert.False(t, q.Has(k), k)
			}
		})
	}
}

func TestListSubsidiesNormalizesPayload(t *testing.T) {
	c, _ := newJGrants(t, http.StatusOK, listBody)
	f := ListFilters{}
	f.SetDefaults()

	res, err := c.ListSubsidies(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 41, res.TotalCount)
	assert.Equal(t, 20, res.Limit)
	assert.Equal(t, 3, res.Pages())
	require.Len(t, res.Subsidies, 1)
	assert.Equal(t, "介護ロボット導入支援", res.Subsidies[0].Title)
	assert.Equal(t, json.Number("3000000"), res.Subsidies[0].SubsidyMaxLimit)
}

func TestListSubsidiesMetadataCount(t *testing.T) {
	c, _ := newJGrants(t, http.StatusOK, `{"metadata":{"type":"subsidies","resultset":{"count":2}},"result":[{"id":"1","title":"a"},{"id":"2","title":"b"}]}`)
	f := ListFilters{}
	f.SetDefaults()

	res, err := c.ListSubsidies(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalCount)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 2, res.Limit)
}

func TestValidationFailsBeforeNetwork(t *testing.T) {
	c, rec := newJGrants(t, http.StatusOK, listBody)
	ctx := context.Background()

	valid := ListFilters{}
	valid.SetDefaults()

	short := valid
	short.Keyword = "介"
	badSort := valid
	badSort.Sort = "title"
	badOrder := valid
	badOrder.Order = "desc"
	badAcceptance := valid
	badAcceptance.Acceptance = "2"

	for _, f := range []ListFilters{short, badSort, badOrder, badAcceptance} {
		_, err := c.ListSubsidies(ctx, f)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	}

	_, err := c.GetSubsidyDetail(ctx, "a0W5h00000abcdEFGHIJ")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "id", verr.Field)

	_, err = c.Search(ctx, SearchQuery{Query: "x", OnlyActive: true})
	require.ErrorAs(t, err, &verr)

	assert.EqualValues(t, 0, rec.calls.Load())
}

func TestUpstreamError(t *testing.T) {
	c, rec := newJGrants(t, http.StatusInternalServerError, `{"message":"boom"}`)
	f := ListFilters{}
	f.SetDefaults()

	_, err := c.ListSubsidies(context.Background(), f)
	var uerr *UpstreamError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, http.StatusInternalServerError, uerr.Status)
	assert.Equal(t, "J-Grants API error: 500 Internal Server Error", uerr.Error())
	assert.EqualValues(t, 1, rec.calls.Load())
}

func TestSearchMapsToListFilters(t *testing.T) {
	c, rec := newJGrants(t, http.StatusOK, listBody)

	_, err := c.Search(context.Background(), SearchQuery{Query: "介護", OnlyActive: false, Area: "大阪府"})
	require.NoError(t, err)

	q := rec.last().URL.Query()
	assert.Equal(t, "acceptance_start_datetime", q.Get("sort"))
	assert.Equal(t, "DESC", q.Get("order"))
	assert.Equal(t, "0", q.Get("acceptance"))
	assert.Equal(t, "大阪府", q.Get("target_area_search"))
	assert.False(t, q.Has("industry"))
}

func TestGetSubsidyDetail(t *testing.T) {
	obj := `{"result":{"id":"a0W1","title":"省力化補助金","detail":"<p>中小企業の<b>省力化</b>を支援</p>","subsidy_rate":"1/2",
		"application_guidelines":[{"name":"公募要領.pdf","data":"JVBERi0x"}],"outline_of_grant":[],"application_form":null}}`
	arr := `{"metadata":{"type":"subsidy"},"result":[{"id":"a0W1","title":"省力化補助金","detail":"<p>中小企業の<b>省力化</b>を支援</p>","subsidy_rate":"1/2",
		"application_guidelines":[{"name":"公募要領.pdf","data":"JVBERi0x"}]}]}`

	for name, body := range map[string]string{"object": obj, "array": arr} {
		t.Run(name, func(t *testing.T) {
			c, rec := newJGrants(t, http.StatusOK, body)

			d, err := c.GetSubsidyDetail(context.Background(), "a0W1")
			require.NoError(t, err)
			assert.Equal(t, "/subsidies/id/a0W1", rec.last().URL.Path)
			assert.Equal(t, "省力化補助金", d.Title)
			assert.True(t, d.HasApplicationGuidelines)
			assert.False(t, d.HasOutlineOfGrant)
			assert.False(t, d.HasApplicationForm)
			assert.NotContains(t, d.Detail, "<p>")
			assert.Contains(t, d.Detail, "省力化")
		})
	}
}

func TestGetSubsidyDetailEmptyResult(t *testing.T) {
	c, _ := newJGrants(t, http.StatusOK, `{"result":[]}`)

	_, err := c.GetSubsidyDetail(context.Background(), "a0W1")
	assert.ErrorIs(t, err, ErrNotFound)
}
