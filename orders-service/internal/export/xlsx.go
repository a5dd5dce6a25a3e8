package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/donpico/tienda/orders-service/internal/domain"
	"github.com/tealeg/xlsx"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var headers = []string{
	"Número", "Fecha", "Cliente", "Teléfono", "Dirección", "Método de pago",
	"Productos", "Subtotal", "Envío", "Total", "Estado", "Visto",
}

// WriteOrders renders orders as a single-sheet workbook.
func WriteOrders(w io.Writer, orders []*domain.Order) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Pedidos")
	if err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}

	headerRow := sheet.AddRow()
	for _, h := range headers {
		headerRow.AddCell().SetValue(h)
	}

	for _, o := range orders {
		row := sheet.AddRow()
		row.AddCell().SetInt64(o.Number)
		row.AddCell().SetValue(o.CreatedAt.Format("2006-01-02 15:04:05"))
		row.AddCell().SetValue(o.Contact.Name)
		row.AddCell().SetValue(o.Contact.Phone)
		row.AddCell().SetValue(o.Address.Street)
		row.AddCell().SetValue(string(o.PaymentMethod))
		row.AddCell().SetValue(itemSummary(o))
		row.AddCell().SetFloat(o.Subtotal.InexactFloat64())
		row.AddCell().SetFloat(o.Shipping.InexactFloat64())
		row.AddCell().SetFloat(o.Total.InexactFloat64())
		row.AddCell().SetValue(string(o.Status))
		row.AddCell().SetBool(o.Seen)
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func itemSummary(o *domain.Order) string {
	parts := make([]string, len(o.Items))
	for i, it := range o.Items {
		parts[i] = fmt.Sprintf("%dx %s", it.Quantity, it.Name)
	}
	return strings.Join(parts, ", ")
}
