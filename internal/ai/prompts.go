package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// kvFormatSpec is the reply contract both prompts demand from the model.
const kvFormatSpec = `Output strictly in the following Key-Value format (no markdown, no json):

name: <merchant_name>
amount: <number>
category: <category>
payment_method: <payment_method>
date: <YYYY-MM-DD>
notes: <any_additional_context>
confidence: <high|low>
missing_fields: <comma_separated_list_or_empty>
response_text: <conversational_message>`

const toneRules = `TONE & STYLE RULES (IMPORTANT)
Friendly, warm, Malaysian-casual tone.
Light humour is encouraged only in response_text.
Never lecture, scold, or shame the user.
If asking questions, keep them short and natural (like chat, not a form).
Do not include emojis.
Do not mention "confidence", "missing fields", or system terms in response_text.`

// BuildTextPrompt composes the instruction for free-text extraction.
// captured carries fields resolved in earlier turns so the model can do
// incremental slot-filling instead of starting over.
func BuildTextPrompt(categories, paymentMethods []string, currentDate string, captured *CapturedData) string {
	var b strings.Builder

	b.WriteString("You are extracting an expense from a chat message for a Malaysian personal finance app.\n\n")
	b.WriteString(toneRules)
	b.WriteString("\n\nCONTEXT:\n")
	fmt.Fprintf(&b, "Categories: [%s]\n", strings.Join(categories, ", "))
	fmt.Fprintf(&b, "Payment Methods: [%s]\n", strings.Join(paymentMethods, ", "))
	fmt.Fprintf(&b, "Current Date: %s\n", currentDate)

	if captured != nil {
		if data, err := json.Marshal(captured); err == nil {
			b.WriteString("\nPREVIOUSLY CAPTURED (keep these unless the user corrects them, fill in what is still missing):\n")
			b.Write(data)
			b.WriteString("\n")
		}
	}

	b.WriteString(`
INSTRUCTIONS:
1. Extract the expense name, amount (in RM), date, and payment method from the user's message.
2. Infer the most appropriate category from the list provided.
3. If critical information is missing, set confidence to 'low' and ask for it in response_text.
4. If all critical fields are captured, set confidence to 'high' and confirm warmly.
5. Dates must be in ISO 8601 format (YYYY-MM-DD). Resolve relative dates against the current date.
6. Select category from the list. If none fit, use "Uncategorized".
7. Select payment method from the list. If not mentioned, use "Cash".
8. `)
	b.WriteString(kvFormatSpec)

	return b.String()
}

// BuildVisionPrompt composes the instruction for receipt image extraction.
func BuildVisionPrompt(categories, paymentMethods []string, currentDate string) string {
	var b strings.Builder

	b.WriteString("You are analyzing a receipt image for a Malaysian personal finance app.\n")
	b.WriteString("Extract transaction details from the receipt.\n\n")
	b.WriteString(toneRules)
	b.WriteString("\n\nCONTEXT:\n")
	fmt.Fprintf(&b, "Categories: [%s]\n", strings.Join(categories, ", "))
	fmt.Fprintf(&b, "Payment Methods: [%s]\n", strings.Join(paymentMethods, ", "))
	fmt.Fprintf(&b, "Current Date: %s\n", currentDate)

	b.WriteString(`
INSTRUCTIONS:
1. Extract merchant name, total amount (in RM), transaction date, and payment method if visible.
2. Infer the most appropriate category from the list provided.
3. If critical information is missing or unclear, set confidence to 'low' and ask for clarification in response_text.
4. If all critical fields are extracted, set confidence to 'high' and provide a warm confirmation message.
5. Dates must be in ISO 8601 format (YYYY-MM-DD).
6. Select category from the list. If none fit, use "Uncategorized".
7. Select payment method from the list. If not visible on receipt, use "Cash".
8. The name is important. Try to infer the merchant name from the receipt. Only use "Miscellaneous" if absolutely no name can be inferred.
9. `)
	b.WriteString(kvFormatSpec)

	return b.String()
}

// DefaultPaymentMethods is used when the client omits its payment method vocabulary.
var DefaultPaymentMethods = []string{"Cash", "Credit Card", "QR Pay", "Transfer"}
