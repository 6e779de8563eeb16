package evcharger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammed-shakir/route-poi-cache/internal/core/model"
)

const page1 = `{"resultCode":"00","totalCount":4,"items":{"item":[
 {"statId":"ME000001","statNm":"강남구청 주차장","chgerId":"01","chgerType":"04","addr":"서울 강남구","lat":"37.5172","lng":"127.0473","busiNm":"환경부","stat":"2"},
 {"statId":"ME000001","statNm":"강남구청 주차장","chgerId":"02","chgerType":"02","addr":"서울 강남구","lat":"37.5172","lng":"127.0473","busiNm":"환경부","stat":"3"},
 {"statId":"ME000002","statNm":"역삼 충전소","chgerId":"01","chgerType":"07","addr":"서울 강남구","lat":"37.50","lng":"127.03","busiNm":"차지비","stat":"2"},
 {"statId":"ME000003","statNm":"삭제된 충전소","chgerId":"01","chgerType":"04","lat":"37.4","lng":"127.0","stat":"2","delYn":"Y"}
]}}`

func TestFetchRegion_FoldsChargersIntoStations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("serviceKey") != "key" || q.Get("zcode") != "11" || q.Get("dataType") != "JSON" {
			t.Errorf("query = %v", q)
		}
		_, _ = w.Write([]byte(page1))
	}))
	defer srv.Close()

	c, err := New(srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	recs, calls, err := c.FetchRegion(context.Background(), "key", "11")
	if err != nil {
		t.Fatalf("FetchRegion: %v", err)
	}
	if calls != 1 || len(recs) != 2 {
		t.Fatalf("calls=%d recs=%+v", calls, recs)
	}

	gangnam := recs[0]
	if gangnam.ExternalID != "ME000001" || gangnam.Region != "11" {
		t.Fatalf("record = %+v", gangnam)
	}
	ev := gangnam.EV
	if ev.Total != 2 || ev.Available != 1 || ev.Fast != 1 || len(ev.Types) != 2 || ev.Operator != "환경부" {
		t.Fatalf("charger status = %+v", ev)
	}
	if recs[1].EV.Fast != 0 || recs[1].EV.Available != 1 {
		t.Fatalf("AC-only station = %+v", recs[1].EV)
	}
}

func TestFetchRegion_ProviderErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"resultCode":"30","resultMsg":"SERVICE_KEY_IS_NOT_REGISTERED_ERROR"}`))
	}))
	defer srv.Close()

	c, _ := New(srv.Client(), srv.URL)
	if _, _, err := c.FetchRegion(context.Background(), "key", "26"); !errors.Is(err, model.ErrUpstream) {
		t.Fatalf("err = %v", err)
	}
}

func TestFetchRegion_MissingKey(t *testing.T) {
	c, _ := New(http.DefaultClient, "http://example.invalid")
	if _, _, err := c.FetchRegion(context.Background(), "", "11"); !errors.Is(err, model.ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}
