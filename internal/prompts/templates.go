package prompts

import "fmt"

func goal(effect string) string {
	return fmt.Sprintf(specGoal, effect)
}

// CodeRegionOpener 和 CodeRegionCloser 用于包裹生成的代码，便于解析
const (
	CodeRegionOpener = "```"
	CodeRegionCloser = "```"
)

// SpecAddendum 要求输出响应式、单文件HTML的附加说明
const SpecAddendum = "\n\nThe app must be fully responsive and function properly on both desktop and mobile. Provide the code as a single, self-contained HTML document. All styles and scripts must be inline. In the result, encase the code between \"" + CodeRegionOpener + "\" and \"" + CodeRegionCloser + "\" for easy parsing."

const specGoal = `The goal of the app that is to be built based on the spec is to enhance understanding through simple and playful design. The provided spec should not be overly complex, i.e., a junior web developer should be able to implement it in a single html file (with all styles and scripts inline). Most importantly, the spec must clearly outline the core mechanics of the app, and those mechanics must be highly effective in %s.`

const specResultFormat = `Provide the result as a JSON object containing a single field called "spec", whose value is the spec for the web app.`

const persona = `You are a pedagogist and product designer with deep expertise in crafting engaging learning experiences via interactive web apps.`

// SpecFromVideoPrompt 视频(YouTube)生成spec
var SpecFromVideoPrompt = persona + `

Examine the contents of the attached video. Then, write a detailed and carefully considered spec for an interactive web app designed to complement the video and reinforce its key idea or ideas. The recipient of the spec does not have access to the video, so the spec must be thorough and self-contained (the spec must not mention that it is based on a video). Here is an example of a spec written in response to a video about functional harmony:

"In music, chords create expectations of movement toward certain other chords and resolution towards a tonal center. This is called functional harmony.

Build me an interactive web app to help a learner understand the concept of functional harmony.

SPECIFICATIONS:
1. The app must feature an interactive keyboard.
2. The app must showcase all 7 diatonic triads that can be created in a major key (i.e., tonic, supertonic, mediant, subdominant, dominant, submediant, leading chord).
3. The app must somehow describe the function of each of the diatonic triads, and state which other chords each triad tends to lead to.
4. The app must provide a way for users to play different chords in sequence and see the results.
[etc.]"

` + goal("reinforcing the given video's key idea(s)") + `

` + specResultFormat

// SpecFromTextPrompt 文本描述生成spec
var SpecFromTextPrompt = persona + `

Based on the following text description, write a detailed and carefully considered spec for an interactive web app designed to reinforce its key idea or ideas. The recipient of the spec does not have access to the original text, so the spec must be thorough and self-contained.

Text description: "{text}"

` + goal("reinforcing the key idea(s) from the text") + `

` + specResultFormat

// SpecFromFilenamePrompt 仅根据文件名推断内容生成spec
var SpecFromFilenamePrompt = persona + `

A file named "{filename}" will be used as the basis for an interactive learning app. Infer the likely content or purpose based on this filename. Write a detailed and carefully considered spec for an interactive web app designed to complement the likely content of the file and reinforce its potential key ideas. The recipient of the spec does not have access to the file itself, so the spec must be thorough and self-contained, based on the inferred purpose from the filename.

` + goal("reinforcing the potential key idea(s) related to the file") + `

` + specResultFormat

// SpecFromWebLinkPrompt 网页无法读取时仅根据URL生成spec
var SpecFromWebLinkPrompt = persona + `

Examine the main purpose and features of the website at the following URL: {url}. Then, write a detailed and carefully considered spec for an interactive web app designed to complement this website and reinforce its key idea or ideas. The recipient of the spec does not have access to the website content directly for this task, so the spec must be thorough and self-contained based on the information you can infer or already know about the URL.

Website URL: "{url}"

` + goal("reinforcing the website's key idea(s)") + `

` + specResultFormat

// SpecFromTopicPrompt 学习主题生成spec
var SpecFromTopicPrompt = persona + `

Based on the following topic, write a detailed and carefully considered spec for an interactive web app designed to help a user learn about this topic. The spec must be thorough and self-contained.

Topic: "{topic}"

` + goal("helping a user learn about the given topic") + `

` + specResultFormat

// SpecFromAudioPrompt 音频文件生成spec
var SpecFromAudioPrompt = persona + `

Listen to the attached audio recording. Then, write a detailed and carefully considered spec for an interactive web app designed to complement the recording and reinforce its key idea or ideas. The recipient of the spec does not have access to the recording, so the spec must be thorough and self-contained (the spec must not mention that it is based on a recording).

` + goal("reinforcing the recording's key idea(s)") + `

` + specResultFormat

// SpecFromPDFContentPrompt PDF提取文本生成spec，模板自带附加说明
const SpecFromPDFContentPrompt = `
Generate a web app specification based on the text content extracted from the provided PDF document.
The extracted text is as follows:
"{pdfText}"

Your response should be a JSON object with a single key "spec", which is a string.
The spec should be a concise summary of the application's purpose and features, suitable for generating HTML code for a functional prototype.
` + SpecAddendum + "\n"

// SpecFromWebContentPrompt 网页提取文本生成spec，模板自带附加说明
const SpecFromWebContentPrompt = `
Generate a web app specification based on the following text content extracted from the website {sourceUrl}.
Extracted text:
"{webText}"

Your response should be a JSON object with a single key "spec", which is a string.
The spec should be a concise summary of the application's purpose and features, suitable for generating HTML code for a functional prototype.
` + SpecAddendum + "\n"
