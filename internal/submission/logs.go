package submission

import (
	"github.com/benvon/smart-survey/internal/catalog"
	"github.com/benvon/smart-survey/internal/models"
)

// NoAnswerIndex marks a log row for a question reached without a selection.
const NoAnswerIndex = -1

// BuildLogs expands result's answers into one log row per selected option.
// Question and option text are taken from cat, never from the client.
// Answers referencing unknown questions are skipped.
func BuildLogs(result *models.TestResult, cat *catalog.Catalog) []*models.UserLog {
	var logs []*models.UserLog
	for _, a := range result.Answers {
		q := cat.Question(a.QuestionID)
		if q == nil {
			continue
		}
		var thinking float64
		if a.ThinkingTime != nil {
			thinking = *a.ThinkingTime
		}
		base := models.UserLog{
			TestResultID:        result.ID,
			SessionID:           result.SessionID,
			QuestionID:          q.ID,
			QuestionText:        q.Question,
			ThinkingTimeSeconds: thinking,
			Demographics:        result.Demographics,
		}

		if len(a.Answers) == 0 {
			row := base
			row.AnswerIndex = NoAnswerIndex
			logs = append(logs, &row)
			continue
		}
		for _, idx := range a.Answers {
			text, ok := cat.OptionText(q.ID, idx)
			if !ok {
				continue
			}
			row := base
			row.Answer = text
			row.AnswerIndex = idx
			logs = append(logs, &row)
		}
	}
	return logs
}
