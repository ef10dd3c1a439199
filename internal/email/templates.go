package email

import (
	"fmt"
	"html"
	"time"
)

// LowStockAlert is the content of a low-stock notification
type LowStockAlert struct {
	ProductID        string
	ProductName      string
	PreviousQuantity int
	Quantity         int
	Threshold        int
	OccurredAt       time.Time
}

func (a LowStockAlert) displayName() string {
	if a.ProductName == "" {
		return a.ProductID
	}
	return a.ProductName
}

// BuildLowStockAlertBody builds the HTML body for a low-stock alert email
func BuildLowStockAlertBody(alert LowStockAlert) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #c0392b; padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Low stock alert</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;"><strong>%s</strong> is below the low-stock threshold of %d.</p>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">Product ID</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; font-family: monospace;">%s</td>
			</tr>
			<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">Previous quantity</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%d</td>
			</tr>
			<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">Current quantity</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right; font-weight: bold; color: #c0392b;">%d</td>
			</tr>
		</table>

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			Sent automatically at %s.
		</p>
	</div>
</body>
</html>`,
		html.EscapeString(alert.displayName()),
		alert.Threshold,
		html.EscapeString(alert.ProductID),
		alert.PreviousQuantity,
		alert.Quantity,
		alert.OccurredAt.UTC().Format(time.RFC1123),
	)
}
