package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type ReceiptRenderer struct{}

func New() Provider {
	return &ReceiptRenderer{}
}

func (r *ReceiptRenderer) RenderReceipt(ctx context.Context, data ReceiptDocument) (io.Reader, error) {
	cfg := config.NewBuilder().Build()
	m := maroto.New(cfg)

	// Letterhead
	m.AddRow(22,
		col.New(12).Add(
			text.New(data.OrganizationName, props.Text{Size: 16, Style: fontstyle.Bold}),
			text.New(data.OrganizationAddress, props.Text{Size: 9, Top: 9}),
			text.New(data.ContactEmail, props.Text{Size: 9, Top: 14}),
		),
	)
	if data.HeaderText != "" {
		m.AddRow(8,
			text.NewCol(12, data.HeaderText, props.Text{Size: 9}),
		)
	}
	m.AddRow(2, line.NewCol(12))

	m.AddRow(14,
		text.NewCol(7, "OFFICIAL RECEIPT", props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   4,
		}),
		text.NewCol(5, data.ReceiptNumber, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   4,
			Align: align.Right,
		}),
	)
	m.AddRow(8,
		col.New(7),
		text.NewCol(5, "Date issued: "+data.IssuedAt, props.Text{Size: 9, Align: align.Right}),
	)

	m.AddRow(22,
		col.New(12).Add(
			text.New("Received from", props.Text{Size: 9, Style: fontstyle.Bold}),
			text.New(data.PayerName, props.Text{Size: 11, Top: 5}),
			text.New(contactLine(data.PayerEmail, data.PayerPhone), props.Text{Size: 8, Top: 11}),
		),
	)

	m.AddRow(12,
		text.NewCol(3, "Amount", props.Text{Size: 9, Style: fontstyle.Bold, Top: 3}),
		text.NewCol(9, data.Amount, props.Text{
			Size:  13,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)
	m.AddRow(10,
		text.NewCol(12, data.AmountInWords, props.Text{Size: 9, Style: fontstyle.Italic}),
	)

	m.AddRow(10,
		text.NewCol(3, "Purpose", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(9, data.Purpose, props.Text{Size: 9}),
	)
	if data.Category != "" {
		m.AddRow(8,
			text.NewCol(3, "Category", props.Text{Size: 9, Style: fontstyle.Bold}),
			text.NewCol(9, data.Category, props.Text{Size: 9}),
		)
	}
	m.AddRow(8,
		text.NewCol(3, "Payment status", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(9, data.PaymentStatus, props.Text{Size: 9}),
	)
	if data.IssuedBy != "" {
		m.AddRow(8,
			text.NewCol(3, "Issued by", props.Text{Size: 9, Style: fontstyle.Bold}),
			text.NewCol(9, data.IssuedBy, props.Text{Size: 9}),
		)
	}

	if data.VerificationPayload != "" {
		verifyHint := "Scan to verify this receipt."
		if data.VerifyURL != "" {
			verifyHint = "Scan to verify, or visit " + data.VerifyURL
		}
		m.AddRow(34,
			code.NewQrCol(4, data.VerificationPayload, props.Rect{
				Center:  true,
				Percent: 90,
			}),
			col.New(8).Add(
				text.New(verifyHint, props.Text{Size: 8, Top: 14}),
			),
		)
	}

	if data.FooterText != "" {
		m.AddRow(2, line.NewCol(12))
		m.AddRow(14,
			text.NewCol(12, data.FooterText, props.Text{Size: 8, Top: 5}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func contactLine(email, phone string) string {
	switch {
	case email != "" && phone != "":
		return email + " / " + phone
	case email != "":
		return email
	default:
		return phone
	}
}
