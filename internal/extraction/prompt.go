package extraction

// receiptExtractionPrompt is the shared prompt used by all extraction providers
const receiptExtractionPrompt = `You are analyzing a photograph of a shopping receipt. Carefully read all text in the image and extract the following information:

1. **Store Category**: Classify the store into one of: "Groceries", "Pharmacy", "Restaurant", "Electronics", "Clothing", "Home", "Other".

2. **Store Name**: The merchant name, usually the largest text at the top of the receipt. Examples: "Walmart", "CVS Pharmacy", "Lidl".

3. **Date**: The transaction or purchase date, converted to ISO 8601 format (YYYY-MM-DD). Common source formats: MM/DD/YYYY, DD/MM/YYYY, DD.MM.YYYY, or written dates.

4. **Total**: The final amount due, usually at the bottom, labeled "TOTAL", "Grand Total", "Amount Due" or similar. Extract only the numeric value.

5. **Tax Amount** and **Total Discount**: if printed on the receipt, otherwise null.

6. **Items**: every line item with its name, quantity, unit price, line total, discount and a category from the list above.

Return ONLY valid JSON in this exact format:
{
  "store_category": "Groceries",
  "store_name": "Store Name",
  "date": "YYYY-MM-DD",
  "total": 0.00,
  "tax_amount": 0.00,
  "total_discount": 0.00,
  "items": [
    {"name": "Item name", "quantity": 1, "price": 0.00, "category": "Groceries", "total": 0.00, "discount": 0.00}
  ]
}

Important:
- All amounts must be numbers (not strings), with a dot as the decimal separator
- Use null for any value you cannot find
- Do not include any text before or after the JSON
- Do not use markdown code blocks
- If the image is not a receipt or is unreadable, return exactly: {"error": "Image does not appear to be a receipt."}`
