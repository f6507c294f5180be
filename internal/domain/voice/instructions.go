package voice

import "strings"

// Instruction is one numbered recording prompt shown to the patient.
type Instruction struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

var instructionLanguages = map[string]string{
	"en":        LangEnglish,
	"english":   LangEnglish,
	"ml":        LangMalayalam,
	"malayalam": LangMalayalam,
}

var instructions = map[string][]Instruction{
	LangEnglish: {
		{1, "Take a deep breath and say the vowel sound /a/ (as in 'car') for as long as you can in one breath. Try to keep your voice steady and clear."},
		{2, "Breathe in deeply and hold the vowel /a/ for as long as possible in one breath. The goal is to measure how long you can produce sound without taking another breath."},
		{3, "You will be shown a short paragraph called the 'Rainbow Passage'. Read it aloud in your natural voice and pace."},
		{4, "Start by making a low-pitched sound and smoothly glide to a high-pitched sound, like a siren. Then do the reverse: from high to low pitch."},
		{5, "Say the vowel /a/ three times: first softly, then in your normal voice, and then loudly. Try to make each version as distinct as possible."},
		{6, "Speak about a topic of your choice, such as your day or a favorite memory, for about 30 to 60 seconds. Speak naturally and continuously."},
		{7, "Sit calmly and breathe normally. We will observe your breathing patterns. You do not need to do anything special."},
		{8, "If you feel a natural urge to cough, please do so. This will help us understand your natural cough reflex."},
		{9, "Take a deep breath and cough as if you are trying to clear your throat. Do this once or twice."},
		{10, "Breathe normally through your mouth for a few seconds. We will listen to the sounds of your breathing."},
	},
	LangMalayalam: {
		{1, "ഒരു ദീപമായി ശ്വാസം എടുക്കുക, ശേഷം അക്ഷരം /ആ/ ദീർഘകാലം വരെ ഒരു ശ്വാസത്തിൽ ഉച്ചരിക്കുക. ശബ്ദം സ്ഥിരതയോടെ പറയാൻ ശ്രമിക്കുക."},
		{2, "ഒരു ദീപമായി ശ്വാസം എടുക്കുക, ശേഷം അക്ഷരം /ആ/ ഒരേ ശ്വാസത്തിൽ എത്ര നാളം വരെ നിലനിർത്താനാകുമെന്നത് പരിശോധിക്കുക."},
		{3, "താഴെ നൽകിയിരിക്കുന്ന പാരഗ്രാഫ് ഉച്ചരിക്കുക. നിങ്ങളുടെ സ്വാഭാവിക ശബ്ദത്തിലും ശൈലിയിലുമാണ് വായിക്കേണ്ടത്."},
		{4, "താഴെയുള്ള ശബ്ദത്തിൽ തുടങ്ങുകയും ക്രമേണ ഉയർന്ന ശബ്ദത്തിലേക്ക് നീങ്ങുകയും ചെയ്യുക. പിന്നീട് വീണ്ടും താഴേക്ക് പോകുക."},
		{5, "/ആ/ അക്ഷരം മൂന്ന് തവണ ഉച്ചരിക്കുക, ആദ്യം നിസ്സാരമായി, തുടർന്ന് സ്വാഭാവികമായി, പിന്നെ ബലമായി."},
		{6, "നിങ്ങളുടെ ദിനചര്യയെക്കുറിച്ച്, ഒരു യാത്രയെക്കുറിച്ച് അല്ലെങ്കിൽ ഓർമ്മകളെക്കുറിച്ച് 30-60 സെക്കന്റ് വരെ സ്വതന്ത്രമായി സംസാരിക്കുക."},
		{7, "സാധാരണ നിലയിൽ ഇരിക്കുക, സ്വാഭാവികമായി ശ്വാസമെടുക്കുക. ശ്വാസമെടുക്കലിന്റെ താളവും രീതി പരിശോധിക്കും."},
		{8, "ചുമവേണ്ടതായിട്ടുള്ള സ്വാഭാവിക ആവശ്യം ഉണ്ടെങ്കിൽ, ചുമിക. ഇത് നിങ്ങളുടെ സ്വാഭാവിക പ്രതിചരണങ്ങൾ വിലയിരുത്താൻ സഹായിക്കും."},
		{9, "ഒരു ദീപമായ ശ്വാസം എടുക്കുക, ശേഷം അറിയിപ്പോടെ ചുമിക്കുക."},
		{10, "വായിലൂടെ പതുക്കെ ശ്വാസമെടുക്കുക. ശബ്ദപരിശോധനക്കായി ഈ ശ്വാസ ശബ്ദങ്ങൾ രേഖപ്പെടുത്തപ്പെടും."},
	},
}

// InstructionsFor resolves a language name or code to its prompts.
func InstructionsFor(language string) (string, []Instruction, bool) {
	code, ok := instructionLanguages[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return "", nil, false
	}
	return code, instructions[code], true
}
