package classifier

import (
	"fmt"
	"strings"
)

func captionPrompt(caption, topic string, keywords []string) string {
	return fmt.Sprintf(`Analyze the caption of a short video and answer "yes" or "no": is it relevant to the searched topic and keywords?

Topic: %s
Keywords: %s
Caption: %s

Answer with the single word "yes" or "no" and nothing else.`, topic, strings.Join(keywords, ", "), caption)
}

func pagePrompt(text, topic string, keywords []string) string {
	return fmt.Sprintf(`Below is the text of a web page reached from a social media profile or advertisement. Answer "yes" or "no": does the page promote or relate to the searched topic and keywords?

Topic: %s
Keywords: %s

%s

Answer with the single word "yes" or "no" and nothing else.`, topic, strings.Join(keywords, ", "), text)
}

func topicPrompt(request string) string {
	return fmt.Sprintf(`Analyze the following request describing a topic to find social media content for:
%q

Respond with a JSON object with exactly these keys:
- "title": a short descriptive title for the search
- "keywords": a list of search keywords without '#'
- "hashtags": a list of hashtags, each starting with '#'

Respond with the JSON object only.`, request)
}
