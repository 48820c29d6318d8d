package documents

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/assuredfarming/assured-farming-backend/pkg/db/models"
)

const dateLayout = "2006-01-02"

// Bundle is everything printed on a signed contract.
type Bundle struct {
	Contract models.Contract
	Listing  models.Listing
	Buyer    models.User
	Farmer   models.User
}

// RenderSignedContract lays out the contract summary as a single-page PDF.
func RenderSignedContract(b Bundle, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetTitle("Contract "+b.Contract.ID.String(), true)
	pdf.SetAuthor("Assured Farming", true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Assured Farming Contract", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, "Reference "+b.Contract.ID.String(), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	rows := [][2]string{
		{"Farmer", party(b.Farmer)},
		{"Buyer", party(b.Buyer)},
		{"Crop", b.Listing.CropName},
		{"Quantity", b.Contract.AgreedQuantity.String() + " " + b.Listing.Unit},
		{"Price per unit", b.Contract.PricePerUnit.StringFixed(2)},
		{"Total value", b.Contract.TotalValue.StringFixed(2)},
		{"Start date", b.Contract.StartDate.UTC().Format(dateLayout)},
		{"End date", optionalDate(b.Contract.EndDate)},
		{"Signed at", optionalDate(b.Contract.SignedAt)},
	}

	pdf.SetFillColor(242, 242, 242)
	for i, row := range rows {
		fill := i%2 == 0
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(50, 8, row[0], "1", 0, "L", fill, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 8, row[1], "1", 1, "L", fill, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
	pdf.MultiCell(0, 5, "Funds for this contract are held in escrow and released to the farmer once delivery is confirmed, the contract period ends without dispute, or an administrator resolves a dispute.", "", "L", false)
	pdf.Ln(4)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 5, "Generated "+generatedAt.UTC().Format(time.RFC3339), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render contract pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func party(u models.User) string {
	if u.FullName == "" {
		return u.Email
	}
	return fmt.Sprintf("%s <%s>", u.FullName, u.Email)
}

func optionalDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(dateLayout)
}
