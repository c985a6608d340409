package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	billing "vibelux-energy/internal/billing/domain"
)

func money(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, currency)
}

// BuildInvoicePDF renders an invoice for customer delivery.
func BuildInvoicePDF(invoice *billing.Invoice) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Energy Savings Invoice")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Invoice: %s", invoice.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Facility: %s", invoice.FacilityID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Billing period: %s", invoice.Period.String()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Version: %d", invoice.Version))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Baseline version: %s", invoice.BaselineVersion))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", invoice.CreatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	if !invoice.DueDate.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Due date: %s", invoice.DueDate.Format("2006-01-02")))
		pdf.Ln(5)
	}
	pdf.Ln(3)

	pdf.Cell(0, 6, fmt.Sprintf("Savings: %.1f%% (%s)", invoice.SavingsPct, money(invoice.SavingsCents, invoice.Currency)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Vibelux share: %s", money(invoice.VibeluxShareCents, invoice.Currency)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Customer savings: %s", money(invoice.CustomerSavingsCents, invoice.Currency)))
	pdf.Ln(5)
	if invoice.Reason != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Note: %s", invoice.Reason))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Payment status: %s", invoice.PaymentStatus))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildInvoiceXLSX renders an invoice workbook with the full version chain.
func BuildInvoiceXLSX(invoice *billing.Invoice, versions []billing.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	versionsSheet := "versions"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(versionsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Energy Savings Invoice")
	_ = f.SetCellValue(summarySheet, "A3", "Invoice")
	_ = f.SetCellValue(summarySheet, "B3", invoice.ID)
	_ = f.SetCellValue(summarySheet, "A4", "Facility")
	_ = f.SetCellValue(summarySheet, "B4", invoice.FacilityID)
	_ = f.SetCellValue(summarySheet, "A5", "Billing period")
	_ = f.SetCellValue(summarySheet, "B5", invoice.Period.String())
	_ = f.SetCellValue(summarySheet, "A6", "Version")
	_ = f.SetCellValue(summarySheet, "B6", invoice.Version)
	_ = f.SetCellValue(summarySheet, "A7", "Savings pct")
	_ = f.SetCellValue(summarySheet, "B7", invoice.SavingsPct)
	_ = f.SetCellValue(summarySheet, "A8", "Savings")
	_ = f.SetCellValue(summarySheet, "B8", money(invoice.SavingsCents, invoice.Currency))
	_ = f.SetCellValue(summarySheet, "A9", "Vibelux share")
	_ = f.SetCellValue(summarySheet, "B9", money(invoice.VibeluxShareCents, invoice.Currency))
	_ = f.SetCellValue(summarySheet, "A10", "Customer savings")
	_ = f.SetCellValue(summarySheet, "B10", money(invoice.CustomerSavingsCents, invoice.Currency))
	_ = f.SetCellValue(summarySheet, "A11", "Reason")
	_ = f.SetCellValue(summarySheet, "B11", invoice.Reason)
	_ = f.SetCellValue(summarySheet, "A12", "Due date")
	if !invoice.DueDate.IsZero() {
		_ = f.SetCellValue(summarySheet, "B12", invoice.DueDate.Format("2006-01-02"))
	}
	_ = f.SetCellValue(summarySheet, "A13", "Payment status")
	_ = f.SetCellValue(summarySheet, "B13", invoice.PaymentStatus)

	_ = f.SetCellValue(versionsSheet, "A1", "Version")
	_ = f.SetCellValue(versionsSheet, "B1", "Status")
	_ = f.SetCellValue(versionsSheet, "C1", "Vibelux share")
	_ = f.SetCellValue(versionsSheet, "D1", "Created")
	for i, version := range versions {
		row := i + 2
		_ = f.SetCellValue(versionsSheet, fmt.Sprintf("A%d", row), version.Version)
		_ = f.SetCellValue(versionsSheet, fmt.Sprintf("B%d", row), version.Status)
		_ = f.SetCellValue(versionsSheet, fmt.Sprintf("C%d", row), money(version.VibeluxShareCents, version.Currency))
		_ = f.SetCellValue(versionsSheet, fmt.Sprintf("D%d", row), version.CreatedAt.Format(time.RFC3339))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
