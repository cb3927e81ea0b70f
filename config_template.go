package main

const configTemplate = `# {{ index .Help "model" }}
default-model: deepseek-chat
# {{ index .Help "base-url" }}
base-url: https://api.deepseek.com
# {{ index .Help "api-key-env" }}
api-key-env: DEEPSEEK_API_KEY
# {{ index .Help "no-cache" }}
no-cache: false
# Model aliases.
models:
  deepseek-chat:
    aliases: ["primary", "chat"]
  deepseek-reasoner:
    aliases: ["reasoner", "r1"]
`
