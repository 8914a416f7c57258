package analyze

import "fmt"

const systemPrompt = `You are an expert content analyzer. Extract structured information from web content.
Analyze the provided text and extract:
1. A concise summary (2-3 sentences)
2. Key points (5-10 bullet points)
3. Important entities (people, organizations, locations, dates)
4. Main topics/categories

Return ONLY valid JSON in this exact format:
{
  "summary": "Brief 2-3 sentence summary",
  "key_points": ["Point 1", "Point 2"],
  "entities": {
    "people": ["Name 1"],
    "organizations": ["Org 1"],
    "locations": ["Location 1"],
    "dates": ["Date 1"]
  },
  "topics": ["Topic 1", "Topic 2"]
}`

func userPrompt(url, title, text string) string {
	if title == "" {
		title = "N/A"
	}
	return fmt.Sprintf("URL: %s\nTitle: %s\n\nContent:\n%s\n\nExtract the structured information as JSON.", url, title, text)
}

func correctivePrompt(cause error) string {
	return fmt.Sprintf("Your previous answer could not be used (%v). "+
		"Reply again with ONLY the JSON object in the exact format requested, with a non-empty \"summary\".", cause)
}
