package config

// GetDefaultPlanTemplate returns the default template for outline generation.
// Fields: .Instruction, .MinWords, .MaxWords, .Sample1, .Sample2
func GetDefaultPlanTemplate() string {
	return `你是一名经验丰富的写作者。请为下面的写作任务制定一份分段写作大纲。

写作任务：
{{.Instruction}}

要求：
- 将全文拆分为若干段，每段写明要点和字数要求。
- 每段字数在 {{.MinWords}} 到 {{.MaxWords}} 字之间，例如 {{.Sample1}} 字或 {{.Sample2}} 字。
- 每段单独占一行，严格使用以下格式，不要输出任何其他内容：

第 1 段 - 要点：（本段的主要内容） - 字数：{{.Sample1}}字
第 2 段 - 要点：（本段的主要内容） - 字数：{{.Sample2}}字`
}

// GetDefaultWriteTemplate returns the default template for section writing.
// Fields: .Instruction, .Plan, .Text, .Step
func GetDefaultWriteTemplate() string {
	return `你是一名经验丰富的写作者。你正在按照大纲逐段完成下面的写作任务。

写作任务：
{{.Instruction}}

写作大纲：
{{.Plan}}

已经完成的正文：
{{.Text}}

现在请继续写作下面这一段，只输出这一段的正文，不要重复已经完成的内容，也不要输出标题或说明：
{{.Step}}`
}
