package notify

import (
	"strings"
	"text/template"

	"github.com/warp/commerce-engine/commerce"
)

var firstPurchaseTemplate = template.Must(template.New("first_purchase").Parse(
	`Hello {{.Owner}},

{{.Product.Name}} (SKU {{.Product.SKU}}) has just been purchased for the first time.

  Purchase:  #{{.Purchase.ID}}
  Client:    {{.Client.Name}} <{{.Client.Email}}>
  Quantity:  {{.Purchase.Quantity}}
  Total:     {{.Purchase.TotalAmount}}
  Date:      {{.Purchase.PurchaseDate.Format "2006-01-02 15:04 MST"}}
`))

var dailyReportTemplate = template.Must(template.New("daily_report").Parse(
	`Daily sales report for {{.Date.Format "2006-01-02"}}

  Completed purchases: {{.TotalPurchases}}
  Revenue:             {{.TotalRevenue}}
{{if .ProductsSold}}
Units sold per product:
{{range $name, $qty := .ProductsSold}}  {{$name}}: {{$qty}}
{{end}}{{end}}{{if .TopProducts}}
Top products by purchases:
{{range $i, $p := .TopProducts}}  {{$p.Name}} ({{$p.SKU}}): {{$p.PurchaseCount}}
{{end}}{{else}}
No purchases were completed.
{{end}}`))

func renderFirstPurchase(detail *commerce.PurchaseDetail) (string, error) {
	var b strings.Builder
	err := firstPurchaseTemplate.Execute(&b, struct {
		*commerce.PurchaseDetail
		Owner string
	}{detail, detail.Product.Administrator.Name})
	return b.String(), err
}

func renderDailyReport(summary *commerce.DailySummary) (string, error) {
	var b strings.Builder
	err := dailyReportTemplate.Execute(&b, summary)
	return b.String(), err
}
