package calculator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-dealer/internal/amortization"
	"github.com/noah-isme/backend-dealer/internal/common"
	"github.com/noah-isme/backend-dealer/internal/financing"
	"github.com/noah-isme/backend-dealer/internal/pricing"
)

func post(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func TestPayment(t *testing.T) {
	rr := post(t, Handler{}.Payment, `{"principal":"$38,800","durationMonths":36,"apr":"2.49"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var summary amortization.Summary
	decodeData(t, rr, &summary)
	require.Equal(t, "1120.81", summary.Payment.StringFixed(2))
}

func TestPaymentInvalidDuration(t *testing.T) {
	rr := post(t, Handler{}.Payment, `{"principal":1000,"durationMonths":0,"apr":5}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var env struct {
		Error common.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Equal(t, "INVALID_DURATION", env.Error.Code)
	require.Equal(t, amortization.InvalidDurationLabel, env.Error.Message)
}

func TestPaymentRejectsNegativeDays(t *testing.T) {
	rr := post(t, Handler{}.Payment, `{"principal":1000,"durationMonths":12,"apr":5,"daysToFirstPayment":-1}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestMatrix(t *testing.T) {
	rr := post(t, Handler{}.Matrix, `{
		"totalOTD": "38800",
		"mode": "print",
		"terms": [
			{"id":"a","durationMonths":36,"apr":"2.49","selected":true},
			{"id":"b","durationMonths":60,"apr":"3.49","selected":false}
		],
		"downPayments": [
			{"id":"d0","amount":0,"selected":true},
			{"id":"d1","amount":"10000","selected":true}
		]
	}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var m financing.Matrix
	decodeData(t, rr, &m)
	require.Equal(t, financing.ModePrint, m.Mode)
	require.Len(t, m.Columns, 1)
	require.Len(t, m.Rows, 2)
	require.Equal(t, "1120.81", m.Rows[0].Cells[0].Payment.StringFixed(2))
	require.Equal(t, "831.94", m.Rows[1].Cells[0].Payment.StringFixed(2))
}

func TestMatrixRejectsTooManyTerms(t *testing.T) {
	terms := make([]string, 11)
	for i := range terms {
		terms[i] = `{"id":"t","durationMonths":12}`
	}
	rr := post(t, Handler{}.Matrix, `{"totalOTD":1000,"terms":[`+strings.Join(terms, ",")+`]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestTotal(t *testing.T) {
	rr := post(t, Handler{}.Total, `{"state":{
		"sellingPrice":"34000",
		"salesTaxRate":"6.25",
		"packages":{"g":{"label":"GAP","value":"795","include":true}},
		"fees":{"f":{"label":"Doc","value":"85","include":true}}
	}}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var b pricing.Breakdown
	decodeData(t, rr, &b)
	require.Equal(t, "34000.00", b.TaxableAmount.StringFixed(2))
	require.Equal(t, "2125.00", b.SalesTax.StringFixed(2))
	require.Equal(t, "37005.00", b.Total.StringFixed(2))
}

func TestTotalNormalisesTradeInStatus(t *testing.T) {
	rr := post(t, Handler{}.Total, `{"state":{
		"sellingPrice":"30000",
		"tradeIns":{"t":{"status":"Financed","allowance":"9000","payoffAmount":"4000","include":true}}
	}}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var b pricing.Breakdown
	decodeData(t, rr, &b)
	require.Equal(t, "5000.00", b.SumTradeIns.StringFixed(2))
	require.Equal(t, "25000.00", b.Total.StringFixed(2))
}

func TestTotalCoercesLooseMoneyStrings(t *testing.T) {
	rr := post(t, Handler{}.Total, `{"state":{
		"sellingPrice":"$30,000",
		"salesTaxRate":"6.25%",
		"accessories":{"a":{"label":"Mats","value":"oops","include":true}}
	}}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var b pricing.Breakdown
	decodeData(t, rr, &b)
	require.Equal(t, "0.00", b.SumAccessories.StringFixed(2))
	require.Equal(t, "1875.00", b.SalesTax.StringFixed(2))
	require.Equal(t, "31875.00", b.Total.StringFixed(2))
}
