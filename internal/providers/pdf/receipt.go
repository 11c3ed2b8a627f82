package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ReceiptLine is one invoice allocation printed on the receipt.
type ReceiptLine struct {
	InvoiceCode string
	Description string
	Amount      string
}

// ReceiptData is the render model for a payment receipt.
type ReceiptData struct {
	ReceiptNumber string
	OrgName       string
	PayerName     string
	Method        string
	DatePaid      string
	Currency      string
	Total         string
	Lines         []ReceiptLine
}

func (p *MarotoProvider) GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(25,
		text.NewCol(8, "Payment receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, p.orgName, props.Text{
			Size:  10,
			Align: align.Right,
		}),
	)

	m.AddRow(25,
		col.New(6).Add(
			text.New("Receipt number: "+data.ReceiptNumber, props.Text{Top: 0}),
			text.New("Date paid: "+data.DatePaid, props.Text{Top: 4}),
			text.New("Method: "+data.Method, props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Received from", props.Text{Style: fontstyle.Bold}),
			text.New(data.PayerName, props.Text{Top: 5}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, fmt.Sprintf("%s %s paid on %s", data.Total, data.Currency, data.DatePaid), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(4, "Invoice", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(5, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, line := range data.Lines {
		m.AddRow(12,
			text.NewCol(4, line.InvoiceCode, props.Text{Size: 9}),
			text.NewCol(5, line.Description, props.Text{Size: 9}),
			text.NewCol(3, line.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(9),
		text.NewCol(3, "Total: "+data.Total, props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
