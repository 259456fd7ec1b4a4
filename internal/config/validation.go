package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// cronParser accepts the same expressions as the scheduler: five fields, or
// six with a leading seconds field, plus descriptors like @daily.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		return ValidCron(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register cron validation: %v", err))
	}
	return v
}

// ValidCron reports whether spec is a schedule the scheduler can run.
func ValidCron(spec string) bool {
	_, err := cronParser.Parse(strings.TrimSpace(spec))
	return err == nil
}

// Validate checks field constraints and the rules that span several fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	switch c.LLM.Provider {
	case "gemini":
		if c.LLM.Gemini.APIKey == "" {
			return fmt.Errorf("%w: llm.gemini.api_key is required for the gemini provider", ErrValidation)
		}
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("%w: llm.openai.api_key is required for the openai provider", ErrValidation)
		}
	}

	if _, err := time.LoadLocation(c.Reports.Timezone); err != nil {
		return fmt.Errorf("%w: reports.timezone %q: %v", ErrValidation, c.Reports.Timezone, err)
	}

	for name, task := range c.Scheduler.Tasks {
		if task.Enabled && strings.TrimSpace(task.Schedule) == "" {
			return fmt.Errorf("%w: scheduler.tasks.%s is enabled without a schedule", ErrValidation, name)
		}
	}

	if c.Admin.Enabled && c.Admin.Addr == "" {
		return fmt.Errorf("%w: admin.addr is required when the admin API is enabled", ErrValidation)
	}

	if c.Storage.RetentionHorizon < c.Storage.MessageTTL {
		return fmt.Errorf("%w: storage.retention_horizon must not be shorter than storage.message_ttl", ErrValidation)
	}
	return nil
}
